package trainrun

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"gorm.io/datatypes"

	"github.com/askstack/askstack-backend/internal/clients/pinecone"
	"github.com/askstack/askstack-backend/internal/clients/redis"
	"github.com/askstack/askstack-backend/internal/data/repos"
	"github.com/askstack/askstack-backend/internal/domain"
	"github.com/askstack/askstack-backend/internal/platform/dbctx"
	"github.com/askstack/askstack-backend/internal/platform/logger"
	"github.com/askstack/askstack-backend/internal/services"
)

// Progress checkpoints for one training run. Fetch and embed dominate the
// wall clock; the later stages are cheap writes.
const (
	progressQueued    = 0
	progressExtracted = 30
	progressEmbedded  = 50
	progressUpserted  = 80
	progressMarked    = 90
	progressDone      = 100
)

type Activities struct {
	Log       *logger.Logger
	Jobs      repos.TrainingJobRepo
	Training  services.TrainingService
	Extractor services.SourceExtractor
	Vectors   pinecone.VectorStore
	Cache     redis.CacheInvalidator
}

// RunPipeline executes one attempt of the training pipeline end to end.
// Failure leaves every already-written vector in place; the deterministic
// vector IDs make the next attempt's upsert overwrite rather than duplicate.
func (a *Activities) RunPipeline(ctx context.Context, in Input) (domain.TrainingJobResult, error) {
	var res domain.TrainingJobResult
	if a == nil || a.Jobs == nil || a.Training == nil || a.Extractor == nil || a.Vectors == nil {
		return res, fmt.Errorf("trainrun: activity not configured")
	}
	if in.JobID == uuid.Nil || in.AgentID == uuid.Nil || in.UserID == uuid.Nil {
		return res, fmt.Errorf("trainrun: incomplete input")
	}

	stopHB := startHeartbeat(ctx)
	defer stopHB()

	// reached tracks the last checkpoint hit, so a failure keeps the progress
	// the run had earned instead of snapping the row back to zero.
	reached := progressQueued

	if err := a.markRunning(ctx, in.JobID); err != nil {
		return res, fmt.Errorf("mark job running: %w", err)
	}
	if err := a.Training.UpdateAgentTrainingStatus(ctx, in.AgentID, domain.TrainingStatusInProgress, progressQueued, "", nil); err != nil {
		return res, a.fail(ctx, in, reached, fmt.Errorf("enter in-progress: %w", err))
	}

	sources, err := a.Extractor.ExtractAllSourcesForAgent(ctx, in.AgentID)
	if err != nil {
		return res, a.fail(ctx, in, reached, fmt.Errorf("extract sources: %w", err))
	}

	// Sources can disappear between enqueue and execution. An empty run is a
	// successful no-op, not an error.
	if len(sources) == 0 {
		res = domain.TrainingJobResult{Success: true}
		if err := a.finalize(ctx, in, res, 0, reached); err != nil {
			return res, err
		}
		return res, nil
	}

	if err := a.Training.UpdateAgentTrainingStatus(ctx, in.AgentID, domain.TrainingStatusInProgress, progressExtracted, "", nil); err != nil {
		return res, a.fail(ctx, in, reached, fmt.Errorf("progress update: %w", err))
	}
	reached = progressExtracted

	records, err := a.Extractor.TransformToVectorFormat(ctx, in.AgentID, sources)
	if err != nil {
		return res, a.fail(ctx, in, reached, fmt.Errorf("transform sources: %w", err))
	}
	if err := a.Training.UpdateAgentTrainingStatus(ctx, in.AgentID, domain.TrainingStatusInProgress, progressEmbedded, "", nil); err != nil {
		return res, a.fail(ctx, in, reached, fmt.Errorf("progress update: %w", err))
	}
	reached = progressEmbedded

	if err := a.Vectors.UpsertRecords(ctx, records, in.UserID, in.AgentID); err != nil {
		return res, a.fail(ctx, in, reached, fmt.Errorf("upsert vectors: %w", err))
	}
	if err := a.Training.UpdateAgentTrainingStatus(ctx, in.AgentID, domain.TrainingStatusInProgress, progressUpserted, "", nil); err != nil {
		return res, a.fail(ctx, in, reached, fmt.Errorf("progress update: %w", err))
	}
	reached = progressUpserted

	sourceIDs := make([]uuid.UUID, 0, len(sources))
	for _, src := range sources {
		if src != nil {
			sourceIDs = append(sourceIDs, src.ID)
		}
	}
	if err := a.Extractor.MarkSourcesAsEmbedded(ctx, sourceIDs); err != nil {
		return res, a.fail(ctx, in, reached, fmt.Errorf("mark sources embedded: %w", err))
	}
	if err := a.Training.UpdateAgentTrainingStatus(ctx, in.AgentID, domain.TrainingStatusInProgress, progressMarked, "", nil); err != nil {
		return res, a.fail(ctx, in, reached, fmt.Errorf("progress update: %w", err))
	}
	reached = progressMarked

	res = domain.TrainingJobResult{
		Success:          true,
		ProcessedSources: len(sourceIDs),
	}
	if err := a.finalize(ctx, in, res, len(sourceIDs), reached); err != nil {
		return res, err
	}

	if a.Log != nil {
		a.Log.Info("Training run completed", "job_id", in.JobID, "agent_id", in.AgentID, "sources", len(sourceIDs))
	}
	return res, nil
}

// RecordFailure stamps the terminal failure onto the job row after the
// queue's retry budget is exhausted.
func (a *Activities) RecordFailure(ctx context.Context, in Input, message string) error {
	if a == nil || a.Jobs == nil {
		return fmt.Errorf("trainrun: activity not configured")
	}
	now := time.Now().UTC()
	raw, _ := json.Marshal(domain.TrainingJobResult{Success: false, Error: message})
	err := a.Jobs.UpdateFields(dbctx.Context{Ctx: ctx}, in.JobID, map[string]interface{}{
		"status":      domain.JobStatusFailed,
		"error":       message,
		"result":      datatypes.JSON(raw),
		"finished_at": now,
	})
	if err != nil {
		return fmt.Errorf("record job failure: %w", err)
	}
	if a.Log != nil {
		a.Log.Error("Training run failed permanently", "job_id", in.JobID, "agent_id", in.AgentID, "error", message)
	}
	return nil
}

func (a *Activities) markRunning(ctx context.Context, jobID uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}
	if err := a.Jobs.IncrementAttempts(dbc, jobID); err != nil {
		return err
	}
	updates := map[string]interface{}{
		"status": domain.JobStatusRunning,
	}
	job, err := a.Jobs.GetByID(dbc, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", jobID)
	}
	if job.StartedAt == nil {
		updates["started_at"] = time.Now().UTC()
	}
	return a.Jobs.UpdateFields(dbc, jobID, updates)
}

// finalize moves state and job row to completed and invalidates caches. It
// runs exactly once per successful run; failed runs never reach it.
func (a *Activities) finalize(ctx context.Context, in Input, res domain.TrainingJobResult, embedded int, reached int) error {
	if in.TotalSources > 0 && embedded > in.TotalSources {
		embedded = in.TotalSources
	}
	if err := a.Training.UpdateAgentTrainingStatus(ctx, in.AgentID, domain.TrainingStatusCompleted, progressDone, "", &embedded); err != nil {
		return a.fail(ctx, in, reached, fmt.Errorf("enter completed: %w", err))
	}

	now := time.Now().UTC()
	raw, _ := json.Marshal(res)
	err := a.Jobs.UpdateFields(dbctx.Context{Ctx: ctx}, in.JobID, map[string]interface{}{
		"status":      domain.JobStatusCompleted,
		"error":       "",
		"result":      datatypes.JSON(raw),
		"finished_at": now,
	})
	if err != nil {
		return a.fail(ctx, in, progressDone, fmt.Errorf("finish job row: %w", err))
	}

	a.invalidateCaches(ctx, in)
	return nil
}

// fail records the attempt's failure on the state and job rows, then returns
// the original error so the queue can decide whether to retry. reached is the
// last checkpoint the run hit; progress stays there rather than resetting.
func (a *Activities) fail(ctx context.Context, in Input, reached int, cause error) error {
	msg := cause.Error()
	if err := a.Training.UpdateAgentTrainingStatus(ctx, in.AgentID, domain.TrainingStatusFailed, reached, msg, nil); err != nil && a.Log != nil {
		a.Log.Warn("Failed to record failed training state", "agent_id", in.AgentID, "error", err)
	}
	err := a.Jobs.UpdateFields(dbctx.Context{Ctx: ctx}, in.JobID, map[string]interface{}{
		"error": msg,
	})
	if err != nil && a.Log != nil {
		a.Log.Warn("Failed to record job error", "job_id", in.JobID, "error", err)
	}
	return cause
}

func (a *Activities) invalidateCaches(ctx context.Context, in Input) {
	if a.Cache == nil {
		return
	}
	if err := a.Cache.InvalidateAgentCache(ctx, in.UserID, in.AgentID); err != nil && a.Log != nil {
		a.Log.Warn("Response cache invalidation failed", "agent_id", in.AgentID, "error", err)
	}
	if err := a.Cache.InvalidateAgentMetadata(ctx, in.AgentID, in.UserID); err != nil && a.Log != nil {
		a.Log.Warn("Metadata cache invalidation failed", "agent_id", in.AgentID, "error", err)
	}
}

func startHeartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		tick := time.NewTicker(10 * time.Second)
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-tick.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
