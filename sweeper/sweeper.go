package sweeper

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/HRV220/plate-detect/storage"
	"github.com/HRV220/plate-detect/store"
)

// Sweeper reclaims expired tasks: the store record (via the expiry index)
// and the on-disk directory tree. It runs on its own interval, independent
// of any task's TTL, and never touches a task before its TTL has elapsed.
type Sweeper struct {
	store    store.Store
	files    *storage.Manager
	interval time.Duration
	logger   *zap.Logger
}

func New(st store.Store, files *storage.Manager, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:    st,
		files:    files,
		interval: interval,
		logger:   logger,
	}
}

// Run loops until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("expiry sweeper started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one reclamation pass and returns the number of tasks
// removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	removed := 0

	ids, err := s.store.ExpiredIDs(ctx, time.Now())
	if err != nil {
		s.logger.Error("failed to list expired tasks", zap.Error(err))
	}
	for _, id := range ids {
		// Purge runs unconditionally; the record may already be gone via
		// the store's native TTL and Purge is idempotent either way.
		if err := s.files.Purge(id); err != nil {
			s.logger.Error("failed to purge task files",
				zap.String("task_id", id),
				zap.Error(err),
			)
			continue
		}
		if err := s.store.Delete(ctx, id); err != nil {
			s.logger.Error("failed to delete task record",
				zap.String("task_id", id),
				zap.Error(err),
			)
			continue
		}
		removed++
	}

	// Directories whose record is gone are orphans: store-absence is the
	// deletion trigger. Only a definite not-found qualifies; a store outage
	// must not purge live work.
	dirIDs, err := s.files.TaskIDs()
	if err != nil {
		s.logger.Error("failed to list task directories", zap.Error(err))
		dirIDs = nil
	}
	for _, id := range dirIDs {
		_, err := s.store.Get(ctx, id)
		if err == nil || !errors.Is(err, store.ErrTaskNotFound) {
			continue
		}
		if err := s.files.Purge(id); err != nil {
			s.logger.Error("failed to purge orphan directory",
				zap.String("task_id", id),
				zap.Error(err),
			)
			continue
		}
		if err := s.store.Delete(ctx, id); err != nil {
			s.logger.Warn("failed to drop orphan index entry",
				zap.String("task_id", id),
				zap.Error(err),
			)
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("expired tasks reclaimed", zap.Int("count", removed))
	}
	return removed
}
