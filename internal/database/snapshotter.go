package database

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/oracle-alpha-go/internal/models"
)

// CallStore is the ledger surface the snapshotter copies from and into.
type CallStore interface {
	Snapshot() []*models.Call
	Restore(calls []*models.Call)
}

// CallPersister stores and loads call snapshots.
type CallPersister interface {
	SaveCalls(ctx context.Context, calls []*models.Call) error
	LoadCalls(ctx context.Context) ([]*models.Call, error)
}

// Snapshotter periodically copies the in-memory ledger to Postgres. It is
// best-effort: a failed save is logged and retried on the next tick.
type Snapshotter struct {
	store    CallStore
	repo     CallPersister
	interval time.Duration
	logger   *logrus.Logger
}

func NewSnapshotter(store CallStore, repo CallPersister, interval time.Duration, logger *logrus.Logger) *Snapshotter {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Snapshotter{store: store, repo: repo, interval: interval, logger: logger}
}

// Restore loads the stored calls into the ledger and returns how many were
// loaded.
func (s *Snapshotter) Restore(ctx context.Context) (int, error) {
	calls, err := s.repo.LoadCalls(ctx)
	if err != nil {
		return 0, err
	}
	s.store.Restore(calls)
	s.logger.WithField("calls", len(calls)).Info("Restored call ledger from database")
	return len(calls), nil
}

// Flush saves the current ledger contents once.
func (s *Snapshotter) Flush(ctx context.Context) error {
	calls := s.store.Snapshot()
	start := time.Now()
	if err := s.repo.SaveCalls(ctx, calls); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"calls":       len(calls),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Saved call snapshot")
	return nil
}

// Run flushes on every interval until ctx is done.
func (s *Snapshotter) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil && ctx.Err() == nil {
				s.logger.WithError(err).Warn("Failed to save call snapshot")
			}
		}
	}
}
