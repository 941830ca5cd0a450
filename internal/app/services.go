package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/askstack/askstack-backend/internal/domain"
	"github.com/askstack/askstack-backend/internal/jobs"
	"github.com/askstack/askstack-backend/internal/platform/envutil"
	"github.com/askstack/askstack-backend/internal/platform/logger"
	"github.com/askstack/askstack-backend/internal/services"
	"github.com/askstack/askstack-backend/internal/temporalx"
	"github.com/askstack/askstack-backend/internal/temporalx/trainworker"
)

type Services struct {
	Auth      services.AuthService
	Agent     services.AgentService
	Training  services.TrainingService
	Extractor services.SourceExtractor

	Worker  *trainworker.Runner
	Sweeper *jobs.RetentionSweeper
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r Repos, c Clients) (Services, error) {
	log.Info("Wiring services...")
	var out Services

	auth, err := services.NewAuthService(log, r.Users, services.AuthConfigFromEnv())
	if err != nil {
		return out, fmt.Errorf("init auth service: %w", err)
	}
	out.Auth = auth

	out.Extractor = services.NewSourceExtractor(log, r.Sources, c.Embedder, services.ExtractorConfig{
		ChunkSize:        envutil.Int("TRAINING_CHUNK_SIZE", 1200),
		ChunkOverlap:     envutil.Int("TRAINING_CHUNK_OVERLAP", 150),
		EmbedBatchSize:   envutil.Int("TRAINING_EMBED_BATCH_SIZE", 64),
		EmbedConcurrency: envutil.Int("TRAINING_EMBED_CONCURRENCY", 4),
	})

	var queue services.TrainingQueue
	if c.Temporal != nil {
		dispatcher, derr := temporalx.NewDispatcher(log, c.Temporal)
		if derr != nil {
			return out, fmt.Errorf("init training dispatcher: %w", derr)
		}
		queue = dispatcher
	} else {
		queue = disabledQueue{}
	}

	out.Training = services.NewTrainingService(
		db, log,
		r.Agents, r.Sources, r.States, r.Jobs,
		c.Vectors, c.Cache, c.Events, queue,
	)

	out.Agent = services.NewAgentService(db, log, r.Agents, r.Sources, r.States, out.Training, c.Cache)

	if c.Temporal != nil {
		worker, werr := trainworker.NewRunner(log, c.Temporal, r.Jobs, out.Training, out.Extractor, c.Vectors, c.Cache)
		if werr != nil {
			return out, fmt.Errorf("init training worker: %w", werr)
		}
		out.Worker = worker
	}

	out.Sweeper = jobs.NewRetentionSweeper(log, r.Jobs, jobs.RetentionConfigFromEnv())
	return out, nil
}

// disabledQueue stands in when no Temporal address is configured; starting a
// training run fails fast instead of wedging the state row.
type disabledQueue struct{}

func (disabledQueue) Dispatch(context.Context, *domain.TrainingJobRun, domain.TrainingJobPayload) error {
	return fmt.Errorf("training queue disabled: TEMPORAL_ADDRESS not configured")
}
