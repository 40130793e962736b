/*
scheduler.go - Periodic integrity scan

PURPOSE:
  Runs the ledger integrity checks over every student on an interval and
  logs each warning. Warnings never block anything; the scan exists so
  inconsistent records surface in the logs without anyone opening the
  integrity report.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Scans once immediately on start
  - Remembers the warnings it already logged so a steady-state problem is
    reported once, not on every tick

CONFIGURATION:
  - CheckInterval: How often to scan (default: 1 hour, integrity.interval)
  - Enabled: Whether the scanner is active (integrity.enabled)

USAGE:
  scanner := NewIntegrityScheduler(handler.Manager, logger)
  scanner.Start()
  // ... later
  scanner.Stop()

SEE ALSO:
  - handlers.go: GetIntegrity endpoint (on-demand report)
  - ledger/integrity.go: the checks
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/fees-ledger/ledger"
)

// IntegrityChecker is the part of ledger.Manager the scheduler needs.
type IntegrityChecker interface {
	Integrity(ctx context.Context) ([]ledger.IntegrityWarning, error)
}

// IntegrityScheduler periodically scans the ledger for integrity warnings.
type IntegrityScheduler struct {
	Checker       IntegrityChecker
	CheckInterval time.Duration
	Enabled       bool

	log    *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	// seen holds warnings already logged, keyed by code/student/record.
	scanMu sync.Mutex
	seen   map[string]bool
}

// NewIntegrityScheduler creates a new scheduler.
func NewIntegrityScheduler(checker IntegrityChecker, logger *zap.Logger) *IntegrityScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntegrityScheduler{
		Checker:       checker,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		log:           logger.Named("integrity"),
		seen:          make(map[string]bool),
	}
}

// Start begins the scheduler.
func (s *IntegrityScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info("integrity scanner disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.log.Info("integrity scanner started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight scan.
func (s *IntegrityScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.log.Info("integrity scanner stopped")
}

func (s *IntegrityScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	s.Scan(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Scan(context.Background())
		case <-stop:
			return
		}
	}
}

// Scan runs one pass and returns the number of new warnings logged.
func (s *IntegrityScheduler) Scan(ctx context.Context) int {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	warnings, err := s.Checker.Integrity(ctx)
	if err != nil {
		s.log.Error("integrity scan failed", zap.Error(err))
		return 0
	}

	current := make(map[string]bool, len(warnings))
	fresh := 0
	for _, w := range warnings {
		key := string(w.Code) + "|" + string(w.StudentID) + "|" + w.RecordID + "|" + w.Message
		current[key] = true
		if s.seen[key] {
			continue
		}
		fresh++
		s.log.Warn("ledger integrity warning",
			zap.String("code", string(w.Code)),
			zap.String("student_id", string(w.StudentID)),
			zap.String("record_id", w.RecordID),
			zap.String("message", w.Message),
		)
	}
	// Forget resolved warnings so they are reported again if they recur.
	s.seen = current

	if fresh > 0 || len(warnings) > 0 {
		s.log.Info("integrity scan completed", zap.Int("warnings", len(warnings)), zap.Int("new", fresh))
	}
	return fresh
}
