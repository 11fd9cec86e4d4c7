/*
scheduler.go - Automated overdue scheduler

PURPOSE:
  Periodically flags pending charges whose due date has passed as overdue,
  so listings and the inactive-debt report stay current without an admin
  hitting POST /api/admin/recalculate-statuses.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start
  - Recalculation is idempotent, so overlapping manual runs are harmless

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewOverdueScheduler(ledger, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RecalculateStatuses endpoint (manual run)
  - billing/ledger.go: Ledger.RecalculateStatuses
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/tuition-engine/billing"
	"github.com/warp/tuition-engine/school"
)

// OverdueScheduler handles automated overdue marking.
type OverdueScheduler struct {
	Ledger        *billing.Ledger
	CheckInterval time.Duration
	Enabled       bool
	// Today is the as-of date of each run. Replaceable in tests.
	Today func() school.Date

	log     *zap.Logger
	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun time.Time
}

// NewOverdueScheduler creates a new scheduler.
func NewOverdueScheduler(ledger *billing.Ledger, log *zap.Logger) *OverdueScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &OverdueScheduler{
		Ledger:        ledger,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Today:         school.Today,
		log:           log.Named("scheduler"),
	}
}

// Start begins the scheduler.
func (s *OverdueScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled || s.CheckInterval <= 0 {
		s.log.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.log.Info("started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight run.
func (s *OverdueScheduler) Stop() {
	s.mu.Lock()
	ticker, stop := s.ticker, s.stop
	s.ticker, s.stop = nil, nil
	s.mu.Unlock()

	if ticker == nil {
		return
	}
	ticker.Stop()
	close(stop)
	s.wg.Wait()
	s.log.Info("stopped")
}

func (s *OverdueScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	s.RunNow(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow performs one recalculation and returns how many charges changed.
func (s *OverdueScheduler) RunNow(ctx context.Context) (int, error) {
	asOf := s.Today()
	n, err := s.Ledger.RecalculateStatuses(ctx, asOf)

	s.mu.Lock()
	s.lastRun = time.Now()
	s.mu.Unlock()

	if err != nil {
		s.log.Error("recalculate statuses", zap.Stringer("as_of", asOf), zap.Error(err))
		return 0, err
	}
	s.log.Debug("recalculated statuses", zap.Stringer("as_of", asOf), zap.Int("updated", n))
	return n, nil
}

// LastRun returns when the last check finished; zero before the first.
func (s *OverdueScheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// NextRunTime returns when the next scheduled check will occur.
func (s *OverdueScheduler) NextRunTime() time.Time {
	return s.LastRun().Add(s.CheckInterval)
}
