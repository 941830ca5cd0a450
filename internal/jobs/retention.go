package jobs

import (
	"context"
	"time"

	"github.com/askstack/askstack-backend/internal/data/repos"
	"github.com/askstack/askstack-backend/internal/domain"
	"github.com/askstack/askstack-backend/internal/platform/dbctx"
	"github.com/askstack/askstack-backend/internal/platform/envutil"
	"github.com/askstack/askstack-backend/internal/platform/logger"
)

// RetentionConfig bounds how long finished job rows are kept. Completed jobs
// age out fast; failed ones stick around longer for debugging. The keep-last
// caps protect against one noisy agent flooding the table inside the window.
type RetentionConfig struct {
	SweepInterval time.Duration
	CompletedTTL  time.Duration
	FailedTTL     time.Duration
	KeepCompleted int
	KeepFailed    int
}

func RetentionConfigFromEnv() RetentionConfig {
	return RetentionConfig{
		SweepInterval: envutil.Seconds("JOB_RETENTION_SWEEP_SECONDS", 3600),
		CompletedTTL:  envutil.Seconds("JOB_RETENTION_COMPLETED_SECONDS", 24*3600),
		FailedTTL:     envutil.Seconds("JOB_RETENTION_FAILED_SECONDS", 7*24*3600),
		KeepCompleted: envutil.Int("JOB_RETENTION_KEEP_COMPLETED", 1000),
		KeepFailed:    envutil.Int("JOB_RETENTION_KEEP_FAILED", 1000),
	}
}

// RetentionSweeper periodically purges finished training job rows.
type RetentionSweeper struct {
	log  *logger.Logger
	jobs repos.TrainingJobRepo
	cfg  RetentionConfig
}

func NewRetentionSweeper(baseLog *logger.Logger, jobRepo repos.TrainingJobRepo, cfg RetentionConfig) *RetentionSweeper {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Hour
	}
	if cfg.CompletedTTL <= 0 {
		cfg.CompletedTTL = 24 * time.Hour
	}
	if cfg.FailedTTL <= 0 {
		cfg.FailedTTL = 7 * 24 * time.Hour
	}
	return &RetentionSweeper{
		log:  baseLog.With("service", "RetentionSweeper"),
		jobs: jobRepo,
		cfg:  cfg,
	}
}

// Start runs the sweep loop until ctx ends. One sweep runs immediately so a
// restart doesn't postpone overdue cleanup by a full interval.
func (s *RetentionSweeper) Start(ctx context.Context) {
	go func() {
		s.sweep(ctx)
		tick := time.NewTicker(s.cfg.SweepInterval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				s.sweep(ctx)
			}
		}
	}()
}

func (s *RetentionSweeper) sweep(ctx context.Context) {
	dbc := dbctx.Context{Ctx: ctx}
	now := time.Now().UTC()

	purged := int64(0)
	if n, err := s.jobs.PurgeFinishedBefore(dbc, domain.JobStatusCompleted, now.Add(-s.cfg.CompletedTTL)); err != nil {
		s.log.Warn("Completed job purge failed", "error", err)
	} else {
		purged += n
	}
	if n, err := s.jobs.PurgeFinishedBefore(dbc, domain.JobStatusFailed, now.Add(-s.cfg.FailedTTL)); err != nil {
		s.log.Warn("Failed job purge failed", "error", err)
	} else {
		purged += n
	}

	if s.cfg.KeepCompleted > 0 {
		if n, err := s.jobs.TrimToRecent(dbc, domain.JobStatusCompleted, s.cfg.KeepCompleted); err != nil {
			s.log.Warn("Completed job trim failed", "error", err)
		} else {
			purged += n
		}
	}
	if s.cfg.KeepFailed > 0 {
		if n, err := s.jobs.TrimToRecent(dbc, domain.JobStatusFailed, s.cfg.KeepFailed); err != nil {
			s.log.Warn("Failed job trim failed", "error", err)
		} else {
			purged += n
		}
	}

	if purged > 0 {
		s.log.Info("Job retention sweep done", "purged", purged)
	}
}
