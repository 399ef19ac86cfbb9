package api

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/hearthcrm/hearth/pkg/auth"
	"github.com/hearthcrm/hearth/pkg/config"
	"github.com/hearthcrm/hearth/pkg/observability"
	"github.com/hearthcrm/hearth/pkg/records"
	"github.com/hearthcrm/hearth/pkg/roles"
	"github.com/hearthcrm/hearth/pkg/sharing"
	"github.com/hearthcrm/hearth/pkg/webhooks"
)

// Expired API keys are kept for a day before deletion so revocation
// investigations can still see them
const keyDeletionGrace = 24 * time.Hour

// Jobs runs scheduled maintenance: webhook retry sweeps, expiry cleanup,
// and gauge refreshes.
type Jobs struct {
	cron   *cron.Cron
	logger *logrus.Logger
}

// NewJobs schedules the background jobs. Any nil dependency skips its jobs.
func NewJobs(cfg *config.Config, logger *logrus.Logger, db *sql.DB,
	authStore *auth.Store, roleStore *roles.Store, shareStore *sharing.Store,
	recordStore *records.Store, manager *webhooks.Manager,
	metrics *observability.Metrics) (*Jobs, error) {

	c := cron.New()
	jobs := &Jobs{cron: c, logger: logger}

	if manager != nil {
		_, err := c.AddFunc(cfg.Webhooks.SweepSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			manager.SweepRetries(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("invalid webhook sweep schedule %q: %w", cfg.Webhooks.SweepSchedule, err)
		}
	}

	_, err := c.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if authStore != nil {
			if n, err := authStore.DeleteExpiredKeys(ctx, keyDeletionGrace); err != nil {
				logger.WithError(err).Warn("expired api key cleanup failed")
			} else if n > 0 {
				logger.WithField("deleted", n).Info("expired api keys removed")
			}
		}
		if shareStore != nil {
			if n, err := shareStore.DeleteExpiredShares(ctx); err != nil {
				logger.WithError(err).Warn("expired share cleanup failed")
			} else if n > 0 {
				logger.WithField("deleted", n).Info("expired manual shares removed")
			}
		}
		if roleStore != nil {
			if n, err := roleStore.DeleteExpiredUserRoles(ctx); err != nil {
				logger.WithError(err).Warn("expired role assignment cleanup failed")
			} else if n > 0 {
				logger.WithField("deleted", n).Info("expired role assignments removed")
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule cleanup job: %w", err)
	}

	if metrics != nil {
		_, err = c.AddFunc("@every 1m", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if db != nil {
				stats := db.Stats()
				metrics.DBConnectionsActive.Set(float64(stats.InUse))
				metrics.DBConnectionsIdle.Set(float64(stats.Idle))
			}
			if recordStore != nil {
				counts, err := recordStore.CountByObject(ctx)
				if err != nil {
					logger.WithError(err).Debug("record count refresh failed")
					return
				}
				for object, count := range counts {
					metrics.RecordsTotal.WithLabelValues(object).Set(float64(count))
				}
			}
		})
		if err != nil {
			return nil, fmt.Errorf("failed to schedule metrics job: %w", err)
		}
	}

	return jobs, nil
}

// Start begins running scheduled jobs
func (j *Jobs) Start() {
	j.cron.Start()
	j.logger.Info("background jobs started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (j *Jobs) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info("background jobs stopped")
}
