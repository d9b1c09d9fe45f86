/*
scheduler.go - Automated reward lifecycle scheduler

PURPOSE:
  Periodically advances time-driven redemption sub-states: scheduled
  commission boosts activate, active boosts expire into the payout flow,
  and elapsed discounts conclude.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start, then on every tick
  - Each pass is one claims.RunLifecycle call; failing items are skipped
    and retried on the next pass

USAGE:
  scheduler := NewLifecycleScheduler(claimsService, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - claims/lifecycle.go: RunLifecycle
  - handlers.go: RunLifecycle endpoint (manual pass)
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/creator-rewards/claims"
)

// LifecycleRunner runs one lifecycle pass. *claims.Service satisfies it.
type LifecycleRunner interface {
	RunLifecycle(ctx context.Context, now time.Time) (claims.LifecycleReport, error)
}

// LifecycleScheduler runs the reward lifecycle on a ticker.
type LifecycleScheduler struct {
	Runner        LifecycleRunner
	Logger        *zap.Logger
	CheckInterval time.Duration
	Enabled       bool
	Now           func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastMu sync.Mutex
	last   time.Time
}

// NewLifecycleScheduler creates a new scheduler.
func NewLifecycleScheduler(runner LifecycleRunner, logger *zap.Logger) *LifecycleScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleScheduler{
		Runner:        runner,
		Logger:        logger.Named("scheduler"),
		CheckInterval: time.Minute,
		Enabled:       true,
		Now:           time.Now,
	}
}

// Start begins the scheduler.
func (s *LifecycleScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.Logger.Info("started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight pass.
func (s *LifecycleScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Logger.Info("stopped")
	}
}

func (s *LifecycleScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	// Run immediately on start
	s.RunNow()

	for {
		select {
		case <-ticker.C:
			s.RunNow()
		case <-stop:
			return
		}
	}
}

// RunNow runs one pass synchronously and returns its report.
func (s *LifecycleScheduler) RunNow() claims.LifecycleReport {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}

	report, err := s.Runner.RunLifecycle(context.Background(), now)
	if err != nil {
		s.Logger.Error("lifecycle pass failed", zap.Error(err))
		return report
	}

	s.lastMu.Lock()
	s.last = now
	s.lastMu.Unlock()

	if report.BoostsActivated > 0 || report.BoostsExpired > 0 || report.DiscountsConcluded > 0 || report.Failures > 0 {
		s.Logger.Info("lifecycle pass completed",
			zap.Int("boosts_activated", report.BoostsActivated),
			zap.Int("boosts_expired", report.BoostsExpired),
			zap.Int("discounts_concluded", report.DiscountsConcluded),
			zap.Int("failures", report.Failures))
	}
	return report
}

// LastRun returns when the last successful pass ran.
func (s *LifecycleScheduler) LastRun() time.Time {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	return s.last
}
