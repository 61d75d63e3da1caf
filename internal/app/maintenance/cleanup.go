// Package maintenance runs scheduled background cleanup: expired cache
// entries, stale audit logs, and orphaned atomic grants.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vngrid/caseguard/internal/models"
	"github.com/vngrid/caseguard/internal/services"
	"github.com/vngrid/caseguard/pkg/logger"
)

const (
	defaultAuditRetentionDays = 90
	defaultSchedule           = "@hourly"
	defaultAuditSchedule      = "@daily"
)

// Cleaner coordinates background maintenance tasks.
type Cleaner struct {
	db        *gorm.DB
	audit     *services.AuditService
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention int

	schedule      string
	auditSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithSchedule overrides the cron specification for cache and grant cleanup.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. A nil audit service
// skips audit retention.
func NewCleaner(db *gorm.DB, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:            db,
		audit:         audit,
		now:           time.Now,
		retention:     defaultAuditRetentionDays,
		schedule:      defaultSchedule,
		auditSchedule: defaultAuditSchedule,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if c.db != nil {
		if _, err := c.cron.AddFunc(c.schedule, func() {
			ctx := context.Background()
			if _, err := CleanupExpired(ctx, c.db, c.now()); err != nil {
				c.log.Warn("cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			ctx := context.Background()
			if _, err := c.audit.CleanupOlderThan(ctx, c.retention); err != nil {
				c.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily
// used in tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.db != nil {
		if _, err := CleanupExpired(ctx, c.db, c.now()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.audit.CleanupOlderThan(ctx, c.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// CleanupStats captures the number of records removed per table.
type CleanupStats struct {
	CacheEntries int64
	AtomicGrants int64
}

// CleanupExpired removes expired cache entries and atomic grants no user is
// attached to anymore. User-level grants themselves are kept: expired windows
// stay on record for traceability.
func CleanupExpired(ctx context.Context, db *gorm.DB, now time.Time) (CleanupStats, error) {
	if db == nil {
		return CleanupStats{}, errors.New("cleanup: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	stats := CleanupStats{}

	if result := db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.CacheEntry{}); result.Error != nil {
		return stats, fmt.Errorf("cleanup: cache entries: %w", result.Error)
	} else {
		stats.CacheEntries = result.RowsAffected
	}

	if result := db.WithContext(ctx).
		Where("id NOT IN (?)", db.Model(&models.UserAtomicGrant{}).Select("atomic_grant_id")).
		Delete(&models.AtomicGrant{}); result.Error != nil {
		return stats, fmt.Errorf("cleanup: atomic grants: %w", result.Error)
	} else {
		stats.AtomicGrants = result.RowsAffected
	}

	return stats, nil
}
