package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/askstack/askstack-backend/internal/clients/pinecone"
	"github.com/askstack/askstack-backend/internal/clients/redis"
	"github.com/askstack/askstack-backend/internal/data/repos"
	"github.com/askstack/askstack-backend/internal/domain"
	"github.com/askstack/askstack-backend/internal/platform/apierr"
	"github.com/askstack/askstack-backend/internal/platform/dbctx"
	"github.com/askstack/askstack-backend/internal/platform/logger"
)

// TrainingQueue hands a persisted job off to the durable queue. The queue owns
// retry, backoff, and timeout policy from that point on.
type TrainingQueue interface {
	Dispatch(ctx context.Context, job *domain.TrainingJobRun, payload domain.TrainingJobPayload) error
}

// TrainingService is the control plane of the training subsystem: it
// validates preconditions, persists the pending state, enqueues work, and is
// the only mutation path the worker uses for the training-state row.
type TrainingService interface {
	StartTraining(ctx context.Context, agentID, userID uuid.UUID) (*domain.TrainingJobRun, error)
	GetTrainingStatus(ctx context.Context, agentID, userID uuid.UUID) (*TrainingStatus, error)
	RetrainAgent(ctx context.Context, agentID, userID uuid.UUID) (*domain.TrainingJobRun, error)
	CleanupAgentVectors(ctx context.Context, agentID, userID uuid.UUID)
	UpdateAgentTrainingStatus(ctx context.Context, agentID uuid.UUID, status string, progress int, errMsg string, embeddedCount *int) error
}

type trainingService struct {
	db     *gorm.DB
	log    *logger.Logger
	agents repos.AgentRepo
	srcs   repos.KnowledgeSourceRepo
	states repos.TrainingStateRepo
	jobs   repos.TrainingJobRepo

	vectors pinecone.VectorStore
	cache   redis.CacheInvalidator
	events  redis.TrainingEventBus
	queue   TrainingQueue
}

func NewTrainingService(
	db *gorm.DB,
	baseLog *logger.Logger,
	agents repos.AgentRepo,
	srcs repos.KnowledgeSourceRepo,
	states repos.TrainingStateRepo,
	jobs repos.TrainingJobRepo,
	vectors pinecone.VectorStore,
	cache redis.CacheInvalidator,
	events redis.TrainingEventBus,
	queue TrainingQueue,
) TrainingService {
	return &trainingService{
		db:      db,
		log:     baseLog.With("service", "TrainingService"),
		agents:  agents,
		srcs:    srcs,
		states:  states,
		jobs:    jobs,
		vectors: vectors,
		cache:   cache,
		events:  events,
		queue:   queue,
	}
}

// TrainingWorkflowID builds the queue identity for one run. It includes the
// trigger timestamp so distinct runs for the same agent stay distinguishable;
// deduplication is the single-flight check's job, not the queue's.
func TrainingWorkflowID(agentID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("agent-training:%s:%d", agentID, at.UnixMilli())
}

func (s *trainingService) StartTraining(ctx context.Context, agentID, userID uuid.UUID) (*domain.TrainingJobRun, error) {
	dbc := dbctx.Context{Ctx: ctx}

	agent, err := s.agents.GetByIDForOwner(dbc, agentID, userID)
	if err != nil {
		return nil, fmt.Errorf("load agent: %w", err)
	}
	if agent == nil {
		return nil, apierr.NotFound("agent_not_found", fmt.Errorf("agent %s not found", agentID))
	}

	// The active check comes before the eligibility count so a start against a
	// running agent reports the conflict, not whatever the source table looks
	// like mid-run.
	state, err := s.ensureState(dbc, agentID, userID)
	if err != nil {
		return nil, err
	}
	if state.TrainingActive() {
		return nil, apierr.Conflict("training_in_progress", fmt.Errorf("training already running for agent %s", agentID))
	}

	eligible, err := s.srcs.CountEligibleByAgentID(dbc, agentID)
	if err != nil {
		return nil, fmt.Errorf("count eligible sources: %w", err)
	}
	if eligible == 0 {
		return nil, apierr.InvalidState("no_eligible_sources", fmt.Errorf("agent %s has no sources to train on", agentID))
	}

	// The read above is for taxonomy only; the conditional update carries the
	// single-flight guarantee, so a concurrent start loses the race here.
	ok, err := s.states.BeginTraining(dbc, agentID, int(eligible))
	if err != nil {
		return nil, fmt.Errorf("begin training: %w", err)
	}
	if !ok {
		return nil, apierr.Conflict("training_in_progress", fmt.Errorf("training already running for agent %s", agentID))
	}

	now := time.Now().UTC()
	payload := domain.TrainingJobPayload{
		AgentID:      agentID,
		UserID:       userID,
		TotalSources: int(eligible),
	}
	job := &domain.TrainingJobRun{
		ID:           uuid.New(),
		AgentID:      agentID,
		OwnerUserID:  userID,
		WorkflowID:   TrainingWorkflowID(agentID, now),
		Status:       domain.JobStatusQueued,
		TotalSources: int(eligible),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	payload.JobID = job.ID
	if raw, merr := json.Marshal(payload); merr == nil {
		job.Payload = datatypes.JSON(raw)
	}

	if _, err := s.jobs.Create(dbc, job); err != nil {
		// Roll the state back so the agent isn't wedged in pending.
		_ = s.states.UpdateFields(dbc, agentID, map[string]interface{}{
			"status": domain.TrainingStatusFailed,
			"error":  "failed to enqueue training job",
		})
		return nil, fmt.Errorf("create training job: %w", err)
	}

	if err := s.queue.Dispatch(ctx, job, payload); err != nil {
		_ = s.jobs.UpdateFields(dbc, job.ID, map[string]interface{}{
			"status": domain.JobStatusFailed,
			"error":  err.Error(),
		})
		_ = s.states.UpdateFields(dbc, agentID, map[string]interface{}{
			"status": domain.TrainingStatusFailed,
			"error":  fmt.Sprintf("dispatch failed: %v", err),
		})
		return nil, fmt.Errorf("dispatch training job: %w", err)
	}

	s.publishEvent(ctx, agentID, userID, domain.TrainingStatusPending, 0, "")
	s.log.Info("Training enqueued", "agent_id", agentID, "job_id", job.ID, "total_sources", eligible)
	return job, nil
}

// RetrainAgent discards prior embeddings and starts a fresh run. The vector
// delete is best-effort: a vector-store outage must not block the retrain.
func (s *trainingService) RetrainAgent(ctx context.Context, agentID, userID uuid.UUID) (*domain.TrainingJobRun, error) {
	dbc := dbctx.Context{Ctx: ctx}

	agent, err := s.agents.GetByIDForOwner(dbc, agentID, userID)
	if err != nil {
		return nil, fmt.Errorf("load agent: %w", err)
	}
	if agent == nil {
		return nil, apierr.NotFound("agent_not_found", fmt.Errorf("agent %s not found", agentID))
	}

	state, err := s.states.GetByAgentID(dbc, agentID)
	if err != nil {
		return nil, fmt.Errorf("load training state: %w", err)
	}
	if state.TrainingActive() {
		return nil, apierr.Conflict("training_in_progress", fmt.Errorf("training already running for agent %s", agentID))
	}

	if err := s.vectors.DeleteAgentVectors(ctx, userID, agentID); err != nil {
		s.log.Warn("Vector delete before retrain failed; continuing", "agent_id", agentID, "error", err)
	}
	if err := s.srcs.ResetEmbeddedByAgentID(dbc, agentID); err != nil {
		return nil, fmt.Errorf("reset embedded flags: %w", err)
	}
	// Conditional reset: a StartTraining that claimed the slot after the
	// active check above must not get its pending row stomped back to idle.
	ok, err := s.states.ResetToIdle(dbc, agentID)
	if err != nil {
		return nil, fmt.Errorf("reset training state: %w", err)
	}
	if !ok {
		return nil, apierr.Conflict("training_in_progress", fmt.Errorf("training already running for agent %s", agentID))
	}

	s.invalidateCaches(ctx, agentID, userID)
	return s.StartTraining(ctx, agentID, userID)
}

// CleanupAgentVectors is called from the agent-deletion flow. It never
// returns an error: agent deletion must not be blocked by the vector store.
func (s *trainingService) CleanupAgentVectors(ctx context.Context, agentID, userID uuid.UUID) {
	has, err := s.vectors.AgentHasVectors(ctx, userID, agentID)
	if err != nil {
		s.log.Warn("Vector existence check failed during cleanup", "agent_id", agentID, "error", err)
		return
	}
	if !has {
		return
	}
	if err := s.vectors.DeleteAgentVectors(ctx, userID, agentID); err != nil {
		s.log.Warn("Vector delete during cleanup failed", "agent_id", agentID, "error", err)
	}
}

// UpdateAgentTrainingStatus is the worker's only mutation path for the state
// row. trained_on is stamped exactly when the row transitions into completed.
func (s *trainingService) UpdateAgentTrainingStatus(ctx context.Context, agentID uuid.UUID, status string, progress int, errMsg string, embeddedCount *int) error {
	dbc := dbctx.Context{Ctx: ctx}

	updates := map[string]interface{}{
		"status":   status,
		"progress": progress,
		"error":    errMsg,
	}
	if embeddedCount != nil {
		updates["embedded_sources_count"] = *embeddedCount
	}
	if status == domain.TrainingStatusCompleted {
		updates["trained_on"] = time.Now().UTC()
	}
	if err := s.states.UpdateFields(dbc, agentID, updates); err != nil {
		return fmt.Errorf("update training state: %w", err)
	}

	state, err := s.states.GetByAgentID(dbc, agentID)
	if err == nil && state != nil {
		s.publishEvent(ctx, agentID, state.OwnerUserID, status, progress, errMsg)
	}
	return nil
}

// ensureState returns the agent's state row, creating the idle row if the
// agent predates it. Normally the row is created together with the agent.
func (s *trainingService) ensureState(dbc dbctx.Context, agentID, userID uuid.UUID) (*domain.AgentTrainingState, error) {
	state, err := s.states.GetByAgentID(dbc, agentID)
	if err != nil {
		return nil, fmt.Errorf("load training state: %w", err)
	}
	if state != nil {
		return state, nil
	}
	state, err = s.states.Create(dbc, &domain.AgentTrainingState{
		AgentID:     agentID,
		OwnerUserID: userID,
		Status:      domain.TrainingStatusIdle,
	})
	if err != nil {
		return nil, fmt.Errorf("create training state: %w", err)
	}
	return state, nil
}

func (s *trainingService) invalidateCaches(ctx context.Context, agentID, userID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAgentCache(ctx, userID, agentID); err != nil {
		s.log.Warn("Response cache invalidation failed", "agent_id", agentID, "error", err)
	}
	if err := s.cache.InvalidateAgentMetadata(ctx, agentID, userID); err != nil {
		s.log.Warn("Metadata cache invalidation failed", "agent_id", agentID, "error", err)
	}
}

func (s *trainingService) publishEvent(ctx context.Context, agentID, userID uuid.UUID, status string, progress int, errMsg string) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, redis.TrainingEvent{
		AgentID:  agentID,
		UserID:   userID,
		Status:   status,
		Progress: progress,
		Error:    errMsg,
	})
	if err != nil {
		s.log.Debug("Training event publish failed", "agent_id", agentID, "error", err)
	}
}
