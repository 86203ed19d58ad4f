// Package janitor prunes login sessions that can no longer authenticate.
package janitor

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"cs2kz-api/internal/model"
)

// Retention is how long expired sessions are kept around for inspection.
const Retention = 30 * 24 * time.Hour

type Janitor struct {
	db       *gorm.DB
	interval time.Duration
	logger   *slog.Logger
	Now      func() time.Time
}

func New(db *gorm.DB, interval time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{
		db:       db,
		interval: interval,
		logger:   logger.With("component", "janitor"),
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	n, err := j.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			j.logger.Warn("failed to prune login sessions", "error", err)
		}
		return
	}
	if n > 0 {
		j.logger.Info("pruned login sessions", "count", n)
	}
}

// Sweep deletes sessions that expired more than Retention ago and returns
// how many rows went away.
func (j *Janitor) Sweep(ctx context.Context) (int64, error) {
	cutoff := j.Now().Add(-Retention)
	res := j.db.WithContext(ctx).
		Where("expires_on < ?", cutoff).
		Delete(&model.LoginSession{})
	return res.RowsAffected, res.Error
}
