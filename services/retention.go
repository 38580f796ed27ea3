package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"book-rag-backend/internal/logger"
)

// RetentionScheduler deletes sessions left idle past the retention window.
// A zero retention disables the sweeper entirely.
type RetentionScheduler struct {
	scheduler *gocron.Scheduler
	history   *HistoryService
	retention time.Duration
}

func NewRetentionScheduler(history *HistoryService, retentionDays int) *RetentionScheduler {
	return &RetentionScheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		history:   history,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
	}
}

// Start schedules the daily sweep. Safe to call with retention disabled.
func (r *RetentionScheduler) Start() {
	if r.retention <= 0 {
		logger.Info("session retention disabled")
		return
	}

	_, err := r.scheduler.Every(1).Day().At("03:00").Tag("session-retention").Do(r.sweep)
	if err != nil {
		logger.Error("failed to schedule retention sweep", "error", err)
		return
	}
	r.scheduler.StartAsync()
	logger.Info("session retention sweeper started", "retention", r.retention.String())
}

func (r *RetentionScheduler) Stop() {
	r.scheduler.Stop()
}

func (r *RetentionScheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	deleted, err := r.history.PurgeIdleSessions(ctx, r.retention)
	if err != nil {
		logger.Error("retention sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		logger.Info("retention sweep removed idle sessions", "deleted", deleted)
	}
}
