package paywall

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"guia-paracuru/internal/client"
	"guia-paracuru/internal/domain"
	"guia-paracuru/internal/domain/model"
)

const (
	defaultTickEvery = time.Second
	defaultPollEvery = 3 * time.Second
)

type Options struct {
	DeviceID  string
	TickEvery time.Duration
	PollEvery time.Duration
	Now       func() time.Time

	// OnChange runs on the event loop after every transition and countdown tick.
	OnChange func(Snapshot)
	// OnEntitlementGranted runs once per approved payment, after the cache write.
	OnEntitlementGranted func(paymentID string, expiresAt time.Time)
}

type eventKind int

const (
	evStart eventKind = iota
	evRetry
	evCreated
	evTick
	evPollDue
	evPollResult
)

// event carries the generation it was produced under; anything from an older
// generation is dropped by the loop.
type event struct {
	kind     eventKind
	gen      uint64
	checkout *client.Checkout
	status   *client.PaymentStatus
	err      error
}

// Machine is the paywall state machine. All state lives on the goroutine
// running Run; other goroutines talk to it through events.
type Machine struct {
	api   PaymentAPI
	cache Cache
	opts  Options
	log   *zerolog.Logger

	events  chan event
	stopped chan struct{}

	mu        sync.RWMutex
	published Snapshot

	// loop-owned
	snap     Snapshot
	gen      uint64
	taskCtx  context.Context
	cancel   context.CancelFunc
	inFlight bool
}

func New(api PaymentAPI, cache Cache, opts Options, logger *zerolog.Logger) *Machine {
	if opts.TickEvery <= 0 {
		opts.TickEvery = defaultTickEvery
	}
	if opts.PollEvery <= 0 {
		opts.PollEvery = defaultPollEvery
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := logger.With().Str("component", "Paywall").Logger()
	m := &Machine{
		api:     api,
		cache:   cache,
		opts:    opts,
		log:     &l,
		events:  make(chan event, 16),
		stopped: make(chan struct{}),
		snap:    Snapshot{State: StateIntro},
	}
	m.published = m.snap
	return m
}

// Snapshot returns the last published state. Safe from any goroutine.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.published
}

// Start requests a new charge. Ignored outside intro.
func (m *Machine) Start() { m.post(event{kind: evStart}) }

// Retry returns from error to intro. Ignored outside error.
func (m *Machine) Retry() { m.post(event{kind: evRetry}) }

// Run processes events until ctx ends. It must be called exactly once.
func (m *Machine) Run(ctx context.Context) error {
	defer close(m.stopped)
	defer m.stopTask()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-m.events:
			m.handle(ctx, ev)
		}
	}
}

func (m *Machine) post(ev event) {
	select {
	case m.events <- ev:
	case <-m.stopped:
	}
}

func (m *Machine) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evStart:
		if m.snap.State != StateIntro {
			return
		}
		m.enterLoading(ctx)
	case evRetry:
		if m.snap.State != StateError {
			return
		}
		m.transition(Snapshot{State: StateIntro})
	default:
		if ev.gen != m.gen {
			m.log.Debug().Int("event", int(ev.kind)).Msg("discarding stale event")
			return
		}
		switch ev.kind {
		case evCreated:
			m.onCreated(ctx, ev)
		case evTick:
			m.onTick()
		case evPollDue:
			m.onPollDue()
		case evPollResult:
			m.onPollResult(ev)
		}
	}
}

func (m *Machine) enterLoading(parent context.Context) {
	m.transition(Snapshot{State: StateLoading})
	ctx, gen := m.startTask(parent)
	go func() {
		c, err := m.api.CreatePayment(ctx, m.opts.DeviceID)
		m.post(event{kind: evCreated, gen: gen, checkout: c, err: err})
	}()
}

func (m *Machine) onCreated(parent context.Context, ev event) {
	if m.snap.State != StateLoading {
		return
	}
	if ev.err != nil {
		m.fail(ev.err)
		return
	}
	remaining := ev.checkout.ExpiresAt.Sub(m.opts.Now())
	if remaining <= 0 {
		m.fail(domain.ErrPaymentExpired)
		return
	}
	m.transition(Snapshot{State: StateQRCode, Checkout: ev.checkout, Remaining: remaining})

	ctx, gen := m.startTask(parent)
	go m.timers(ctx, gen)
}

// timers feeds countdown ticks and poll requests until ctx is cancelled.
func (m *Machine) timers(ctx context.Context, gen uint64) {
	tick := time.NewTicker(m.opts.TickEvery)
	defer tick.Stop()
	poll := time.NewTicker(m.opts.PollEvery)
	defer poll.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			m.post(event{kind: evTick, gen: gen})
		case <-poll.C:
			m.post(event{kind: evPollDue, gen: gen})
		}
	}
}

func (m *Machine) onTick() {
	if m.snap.State != StateQRCode {
		return
	}
	remaining := m.snap.Checkout.ExpiresAt.Sub(m.opts.Now())
	if remaining <= 0 {
		m.fail(domain.ErrPaymentExpired)
		return
	}
	next := m.snap
	next.Remaining = remaining
	m.publish(next)
}

func (m *Machine) onPollDue() {
	if m.snap.State != StateQRCode || m.inFlight {
		return
	}
	m.inFlight = true
	ctx, gen, id := m.taskCtx, m.gen, m.snap.Checkout.PaymentID
	go func() {
		st, err := m.api.Status(ctx, id)
		m.post(event{kind: evPollResult, gen: gen, status: st, err: err})
	}()
}

func (m *Machine) onPollResult(ev event) {
	m.inFlight = false
	if m.snap.State != StateQRCode {
		return
	}
	switch {
	case errors.Is(ev.err, domain.ErrNotFound):
		m.fail(ev.err)
		return
	case ev.err != nil:
		m.log.Debug().Err(ev.err).Msg("status poll failed")
		return
	}

	switch ev.status.Status {
	case model.PaymentStatusApproved:
		m.grant(ev.status)
	case model.PaymentStatusRejected:
		m.failKind(ErrorRejected, errors.New("payment rejected"))
	case model.PaymentStatusExpired:
		m.fail(domain.ErrPaymentExpired)
	}
}

func (m *Machine) grant(st *client.PaymentStatus) {
	checkout := m.snap.Checkout
	next := Snapshot{State: StateSuccess, Checkout: checkout}
	if st.PremiumExpiresAt != nil {
		next.PremiumExpiresAt = *st.PremiumExpiresAt
		if err := m.cache.Write(checkout.PaymentID, *st.PremiumExpiresAt); err != nil {
			m.log.Error().Err(err).Str("payment_id", checkout.PaymentID).Msg("premium cache write failed")
		}
	} else {
		m.log.Warn().Str("payment_id", checkout.PaymentID).Msg("approved status without premium expiry")
	}
	m.transition(next)
	if cb := m.opts.OnEntitlementGranted; cb != nil {
		cb(checkout.PaymentID, next.PremiumExpiresAt)
	}
}

func (m *Machine) fail(err error) {
	var already *domain.AlreadyEntitledError
	switch {
	case errors.As(err, &already):
		m.transition(Snapshot{State: StateError, ErrorKind: ErrorAlreadyEntitled, EntitledUntil: already.ExpiresAt, Err: err})
	case errors.Is(err, domain.ErrPaymentExpired):
		m.failKind(ErrorExpired, err)
	case errors.Is(err, domain.ErrNotFound):
		m.failKind(ErrorNotFound, err)
	case errors.Is(err, domain.ErrProcessorUnavailable):
		m.failKind(ErrorProcessor, err)
	case errors.Is(err, domain.ErrRateLimited):
		m.failKind(ErrorRateLimited, err)
	default:
		m.failKind(ErrorUnavailable, err)
	}
}

func (m *Machine) failKind(kind ErrorKind, err error) {
	m.transition(Snapshot{State: StateError, ErrorKind: kind, Err: err})
}

// transition moves to a new state. Any running task belongs to the old state
// and is cancelled.
func (m *Machine) transition(next Snapshot) {
	if next.State != m.snap.State {
		m.stopTask()
		m.log.Debug().Str("from", string(m.snap.State)).Str("to", string(next.State)).Msg("transition")
	}
	m.publish(next)
}

func (m *Machine) publish(s Snapshot) {
	m.snap = s
	m.mu.Lock()
	m.published = s
	m.mu.Unlock()
	if m.opts.OnChange != nil {
		m.opts.OnChange(s)
	}
}
