//go:build !integration

package paywall_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"guia-paracuru/internal/client"
	"guia-paracuru/internal/domain"
	"guia-paracuru/internal/domain/model"
	"guia-paracuru/internal/paywall"
)

type fakeAPI struct {
	mu          sync.Mutex
	checkout    *client.Checkout
	createErr   error
	status      model.PaymentStatus
	premiumExp  time.Time
	statusErr   error
	statusCalls int
	createCalls int
	// release, when set, holds every status call until it is closed.
	release chan struct{}
}

func (f *fakeAPI) CreatePayment(_ context.Context, _ string) (*client.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	c := *f.checkout
	return &c, nil
}

func (f *fakeAPI) Status(_ context.Context, _ string) (*client.PaymentStatus, error) {
	f.mu.Lock()
	f.statusCalls++
	release := f.release
	f.mu.Unlock()
	if release != nil {
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	st := &client.PaymentStatus{Status: f.status}
	if f.status == model.PaymentStatusApproved {
		paid, exp := time.Now(), f.premiumExp
		st.PaidAt, st.PremiumExpiresAt = &paid, &exp
	}
	return st, nil
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

type fakeCache struct {
	mu     sync.Mutex
	writes []string
	exp    time.Time
}

func (c *fakeCache) Write(paymentID string, expiresAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, paymentID)
	c.exp = expiresAt
	return nil
}

func (c *fakeCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

var _ = Describe("Machine", func() {
	var (
		api     *fakeAPI
		cache   *fakeCache
		machine *paywall.Machine
		granted chan string
		window  time.Duration
	)

	state := func() paywall.State { return machine.Snapshot().State }

	start := func() {
		logger := zerolog.Nop()
		granted = make(chan string, 4)
		api.checkout.ExpiresAt = time.Now().Add(window)
		machine = paywall.New(api, cache, paywall.Options{
			DeviceID:  "dev-1",
			TickEvery: 10 * time.Millisecond,
			PollEvery: 20 * time.Millisecond,
			OnEntitlementGranted: func(paymentID string, _ time.Time) {
				granted <- paymentID
			},
		}, &logger)
		ctx, cancel := context.WithCancel(context.Background())
		DeferCleanup(cancel)
		go func() { _ = machine.Run(ctx) }()
		machine.Start()
	}

	BeforeEach(func() {
		window = time.Minute
		api = &fakeAPI{
			checkout: &client.Checkout{
				PaymentID: "p-1",
				QRCode:    "00020101",
				Amount:    decimal.RequireFromString("1.99"),
			},
			status:     model.PaymentStatusPending,
			premiumExp: time.Now().AddDate(0, 0, 30),
		}
		cache = &fakeCache{}
	})

	It("starts in intro", func() {
		logger := zerolog.Nop()
		m := paywall.New(api, cache, paywall.Options{}, &logger)
		Expect(m.Snapshot().State).To(Equal(paywall.StateIntro))
	})

	Context("when the charge is created", func() {
		It("shows the QR code with a running countdown", func() {
			start()

			Eventually(state).Should(Equal(paywall.StateQRCode))
			snap := machine.Snapshot()
			Expect(snap.Checkout.PaymentID).To(Equal("p-1"))
			Expect(snap.Remaining).To(BeNumerically(">", 50*time.Second))
		})

		It("writes the cache and reports the grant on approval", func() {
			start()
			Eventually(state).Should(Equal(paywall.StateQRCode))

			api.set(func(f *fakeAPI) { f.status = model.PaymentStatusApproved })

			Eventually(state).Should(Equal(paywall.StateSuccess))
			Eventually(granted).Should(Receive(Equal("p-1")))
			Expect(cache.count()).To(Equal(1))
			Expect(machine.Snapshot().PremiumExpiresAt).To(BeTemporally("~", api.premiumExp, time.Second))

			calls := api.calls()
			Consistently(api.calls, 100*time.Millisecond).Should(Equal(calls))
			Consistently(granted, 100*time.Millisecond).ShouldNot(Receive())
		})

		It("keeps polling through transient failures", func() {
			api.statusErr = client.ErrUnavailable
			start()
			Eventually(state).Should(Equal(paywall.StateQRCode))
			Eventually(api.calls).Should(BeNumerically(">=", 2))
			Expect(state()).To(Equal(paywall.StateQRCode))

			api.set(func(f *fakeAPI) {
				f.statusErr = nil
				f.status = model.PaymentStatusApproved
			})

			Eventually(state).Should(Equal(paywall.StateSuccess))
		})

		It("never runs two polls at once", func() {
			release := make(chan struct{})
			api.release = release
			start()
			Eventually(api.calls).Should(Equal(1))

			Consistently(api.calls, 150*time.Millisecond).Should(Equal(1))

			api.set(func(f *fakeAPI) { f.status = model.PaymentStatusApproved })
			close(release)
			Eventually(state).Should(Equal(paywall.StateSuccess))
		})

		It("fails on a rejected payment", func() {
			api.status = model.PaymentStatusRejected
			start()

			Eventually(state).Should(Equal(paywall.StateError))
			Expect(machine.Snapshot().ErrorKind).To(Equal(paywall.ErrorRejected))
		})

		It("fails when the payment is unknown", func() {
			api.statusErr = domain.ErrPaymentNotFound
			start()

			Eventually(state).Should(Equal(paywall.StateError))
			Expect(machine.Snapshot().ErrorKind).To(Equal(paywall.ErrorNotFound))
		})
	})

	Context("when the countdown runs out first", func() {
		BeforeEach(func() { window = 150 * time.Millisecond })

		It("stops polling and ignores a late approval", func() {
			start()
			Eventually(state).Should(Equal(paywall.StateQRCode))

			Eventually(state).Should(Equal(paywall.StateError))
			Expect(machine.Snapshot().ErrorKind).To(Equal(paywall.ErrorExpired))

			calls := api.calls()
			api.set(func(f *fakeAPI) { f.status = model.PaymentStatusApproved })

			Consistently(api.calls, 100*time.Millisecond).Should(Equal(calls))
			Consistently(state, 100*time.Millisecond).Should(Equal(paywall.StateError))
			Expect(cache.count()).To(BeZero())
			Expect(granted).NotTo(Receive())
		})

		It("discards an approval that was in flight when time ran out", func() {
			release := make(chan struct{})
			api.release = release
			start()
			Eventually(api.calls).Should(Equal(1))

			Eventually(state).Should(Equal(paywall.StateError))
			api.set(func(f *fakeAPI) { f.status = model.PaymentStatusApproved })
			close(release)

			Consistently(state, 100*time.Millisecond).Should(Equal(paywall.StateError))
			Expect(cache.count()).To(BeZero())
		})
	})

	Context("when creation fails", func() {
		It("shows the blocking grant for an entitled device and returns to intro on retry", func() {
			until := time.Now().AddDate(0, 0, 10)
			api.createErr = &domain.AlreadyEntitledError{ExpiresAt: until}
			start()

			Eventually(state).Should(Equal(paywall.StateError))
			snap := machine.Snapshot()
			Expect(snap.ErrorKind).To(Equal(paywall.ErrorAlreadyEntitled))
			Expect(snap.EntitledUntil).To(BeTemporally("==", until))

			machine.Retry()
			Eventually(state).Should(Equal(paywall.StateIntro))
		})

		It("maps processor failures", func() {
			api.createErr = domain.ErrProcessorUnavailable
			start()

			Eventually(state).Should(Equal(paywall.StateError))
			Expect(machine.Snapshot().ErrorKind).To(Equal(paywall.ErrorProcessor))
		})

		It("creates a fresh charge after retry", func() {
			api.createErr = domain.ErrProcessorUnavailable
			start()
			Eventually(state).Should(Equal(paywall.StateError))

			api.set(func(f *fakeAPI) { f.createErr = nil })
			machine.Retry()
			Eventually(state).Should(Equal(paywall.StateIntro))
			machine.Start()

			Eventually(state).Should(Equal(paywall.StateQRCode))
			api.mu.Lock()
			defer api.mu.Unlock()
			Expect(api.createCalls).To(Equal(2))
		})
	})

	It("ignores Start outside intro", func() {
		start()
		Eventually(state).Should(Equal(paywall.StateQRCode))

		machine.Start()

		Consistently(state, 50*time.Millisecond).Should(Equal(paywall.StateQRCode))
		api.mu.Lock()
		defer api.mu.Unlock()
		Expect(api.createCalls).To(Equal(1))
	})
})
