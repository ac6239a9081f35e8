package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"
)

// Job is one unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs its jobs, one after another, on every tick of a cron expression.
type Scheduler struct {
	expr    string
	timeout time.Duration
	jobs    []Job
	now     func() time.Time
	log     *zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler validates expr (standard five-field cron). timeout bounds a
// single pass; zero means one minute.
func NewScheduler(expr string, timeout time.Duration, logger *zerolog.Logger, jobs ...Job) (*Scheduler, error) {
	gx := gronx.New()
	if !gx.IsValid(expr) {
		return nil, fmt.Errorf("invalid cron expression %q", expr)
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	l := logger.With().Str("component", "Scheduler").Str("cron", expr).Logger()
	return &Scheduler{expr: expr, timeout: timeout, jobs: jobs, now: time.Now, log: &l}, nil
}

// Start begins the loop in a background goroutine. Calling it twice has no effect.
func (s *Scheduler) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop cancels the loop and waits for the running pass to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	s.log.Info().Int("jobs", len(s.jobs)).Msg("scheduler started")
	for {
		now := s.now()
		next, err := gronx.NextTickAfter(s.expr, now, false)
		if err != nil {
			s.log.Error().Err(err).Msg("cannot compute next tick; stopping")
			return
		}
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info().Msg("scheduler stopped")
			return
		case <-timer.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs every job once with a bounded timeout. A failing job does not
// prevent the next one from running; the first error is returned.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var first error
	for _, j := range s.jobs {
		start := time.Now()
		err := j.Run(runCtx)
		ev := s.log.Debug()
		if err != nil {
			ev = s.log.Error().Err(err)
			if first == nil {
				first = fmt.Errorf("%s: %w", j.Name(), err)
			}
		}
		ev.Str("job", j.Name()).Dur("elapsed", time.Since(start)).Msg("job finished")
	}
	return first
}
