package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/askstack/askstack-backend/internal/clients/pinecone"
	"github.com/askstack/askstack-backend/internal/clients/redis"
	"github.com/askstack/askstack-backend/internal/domain"
	"github.com/askstack/askstack-backend/internal/platform/apierr"
	"github.com/askstack/askstack-backend/internal/platform/dbctx"
	"github.com/askstack/askstack-backend/internal/platform/logger"
)

// -------------------- stubs --------------------

type stubAgentRepo struct {
	agents map[uuid.UUID]*domain.Agent
}

func (s *stubAgentRepo) Create(dbc dbctx.Context, agent *domain.Agent) (*domain.Agent, error) {
	s.agents[agent.ID] = agent
	return agent, nil
}

func (s *stubAgentRepo) GetByIDForOwner(dbc dbctx.Context, id, ownerUserID uuid.UUID) (*domain.Agent, error) {
	agent, ok := s.agents[id]
	if !ok || agent.OwnerUserID != ownerUserID {
		return nil, nil
	}
	return agent, nil
}

func (s *stubAgentRepo) ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID) ([]*domain.Agent, error) {
	var out []*domain.Agent
	for _, a := range s.agents {
		if a.OwnerUserID == ownerUserID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *stubAgentRepo) Delete(dbc dbctx.Context, id, ownerUserID uuid.UUID) error {
	delete(s.agents, id)
	return nil
}

type stubSourceRepo struct {
	eligible    []*domain.KnowledgeSource
	all         []*domain.KnowledgeSource
	markedIDs   []uuid.UUID
	resetCalled bool
}

func (s *stubSourceRepo) Create(dbc dbctx.Context, sources []*domain.KnowledgeSource) ([]*domain.KnowledgeSource, error) {
	s.all = append(s.all, sources...)
	return sources, nil
}

func (s *stubSourceRepo) GetByAgentID(dbc dbctx.Context, agentID uuid.UUID) ([]*domain.KnowledgeSource, error) {
	return s.all, nil
}

func (s *stubSourceRepo) GetEligibleByAgentID(dbc dbctx.Context, agentID uuid.UUID) ([]*domain.KnowledgeSource, error) {
	return s.eligible, nil
}

func (s *stubSourceRepo) CountEligibleByAgentID(dbc dbctx.Context, agentID uuid.UUID) (int64, error) {
	return int64(len(s.eligible)), nil
}

func (s *stubSourceRepo) MarkEmbedded(dbc dbctx.Context, sourceIDs []uuid.UUID) error {
	s.markedIDs = append(s.markedIDs, sourceIDs...)
	return nil
}

func (s *stubSourceRepo) ResetEmbeddedByAgentID(dbc dbctx.Context, agentID uuid.UUID) error {
	s.resetCalled = true
	return nil
}

func (s *stubSourceRepo) CountEmbeddedSince(dbc dbctx.Context, agentID uuid.UUID, since time.Time) (int64, error) {
	return 0, nil
}

func (s *stubSourceRepo) DeleteByAgentID(dbc dbctx.Context, agentID uuid.UUID) error {
	s.all = nil
	s.eligible = nil
	return nil
}

type stubStateRepo struct {
	state        *domain.AgentTrainingState
	resetRefused bool
}

func (s *stubStateRepo) Create(dbc dbctx.Context, state *domain.AgentTrainingState) (*domain.AgentTrainingState, error) {
	s.state = state
	return state, nil
}

func (s *stubStateRepo) GetByAgentID(dbc dbctx.Context, agentID uuid.UUID) (*domain.AgentTrainingState, error) {
	if s.state == nil || s.state.AgentID != agentID {
		return nil, nil
	}
	copied := *s.state
	return &copied, nil
}

func (s *stubStateRepo) BeginTraining(dbc dbctx.Context, agentID uuid.UUID, totalSources int) (bool, error) {
	if s.state == nil || s.state.AgentID != agentID {
		return false, nil
	}
	if s.state.TrainingActive() {
		return false, nil
	}
	s.state.Status = domain.TrainingStatusPending
	s.state.Progress = 0
	s.state.Error = ""
	s.state.EmbeddedSourcesCount = 0
	s.state.TotalSourcesCount = totalSources
	return true, nil
}

func (s *stubStateRepo) UpdateFields(dbc dbctx.Context, agentID uuid.UUID, updates map[string]interface{}) error {
	if s.state == nil {
		return nil
	}
	if v, ok := updates["status"].(string); ok {
		s.state.Status = v
	}
	if v, ok := updates["progress"].(int); ok {
		s.state.Progress = v
	}
	if v, ok := updates["error"].(string); ok {
		s.state.Error = v
	}
	if v, ok := updates["embedded_sources_count"].(int); ok {
		s.state.EmbeddedSourcesCount = v
	}
	if v, ok := updates["trained_on"].(time.Time); ok {
		s.state.TrainedOn = &v
	}
	return nil
}

func (s *stubStateRepo) ResetToIdle(dbc dbctx.Context, agentID uuid.UUID) (bool, error) {
	if s.resetRefused || s.state == nil || s.state.TrainingActive() {
		return false, nil
	}
	s.state.Status = domain.TrainingStatusIdle
	s.state.Progress = 0
	s.state.Error = ""
	s.state.EmbeddedSourcesCount = 0
	s.state.TotalSourcesCount = 0
	s.state.TrainedOn = nil
	return true, nil
}

func (s *stubStateRepo) DeleteByAgentID(dbc dbctx.Context, agentID uuid.UUID) error {
	s.state = nil
	return nil
}

type stubJobRepo struct {
	jobs []*domain.TrainingJobRun
}

func (s *stubJobRepo) Create(dbc dbctx.Context, job *domain.TrainingJobRun) (*domain.TrainingJobRun, error) {
	s.jobs = append(s.jobs, job)
	return job, nil
}

func (s *stubJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.TrainingJobRun, error) {
	for _, j := range s.jobs {
		if j.ID == id {
			return j, nil
		}
	}
	return nil, nil
}

func (s *stubJobRepo) GetLatestByAgent(dbc dbctx.Context, agentID uuid.UUID) (*domain.TrainingJobRun, error) {
	if len(s.jobs) == 0 {
		return nil, nil
	}
	return s.jobs[len(s.jobs)-1], nil
}

func (s *stubJobRepo) ListRecentByAgent(dbc dbctx.Context, agentID uuid.UUID, limit int) ([]*domain.TrainingJobRun, error) {
	return s.jobs, nil
}

func (s *stubJobRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	for _, j := range s.jobs {
		if j.ID != id {
			continue
		}
		if v, ok := updates["status"].(string); ok {
			j.Status = v
		}
		if v, ok := updates["error"].(string); ok {
			j.Error = v
		}
	}
	return nil
}

func (s *stubJobRepo) IncrementAttempts(dbc dbctx.Context, id uuid.UUID) error {
	for _, j := range s.jobs {
		if j.ID == id {
			j.Attempts++
		}
	}
	return nil
}

func (s *stubJobRepo) PurgeFinishedBefore(dbc dbctx.Context, status string, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (s *stubJobRepo) TrimToRecent(dbc dbctx.Context, status string, keep int) (int64, error) {
	return 0, nil
}

type stubVectorStore struct {
	hasVectors  bool
	hasErr      error
	deleteErr   error
	deleteCalls int
	upserted    []pinecone.VectorRecord
	countErr    error
}

func (s *stubVectorStore) UpsertRecords(ctx context.Context, records []pinecone.VectorRecord, userID, agentID uuid.UUID) error {
	s.upserted = append(s.upserted, records...)
	return nil
}

func (s *stubVectorStore) DeleteAgentVectors(ctx context.Context, userID, agentID uuid.UUID) error {
	s.deleteCalls++
	return s.deleteErr
}

func (s *stubVectorStore) AgentHasVectors(ctx context.Context, userID, agentID uuid.UUID) (bool, error) {
	return s.hasVectors, s.hasErr
}

func (s *stubVectorStore) GetAgentVectorCount(ctx context.Context, userID, agentID uuid.UUID) (int64, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	if s.hasVectors {
		return 1, nil
	}
	return 0, nil
}

func (s *stubVectorStore) Namespace(userID, agentID uuid.UUID) string {
	return "as:" + userID.String() + ":" + agentID.String()
}

type stubCache struct {
	responseInvalidations int
	metadataInvalidations int
}

func (s *stubCache) InvalidateAgentCache(ctx context.Context, userID, agentID uuid.UUID) error {
	s.responseInvalidations++
	return nil
}

func (s *stubCache) InvalidateAgentMetadata(ctx context.Context, agentID, userID uuid.UUID) error {
	s.metadataInvalidations++
	return nil
}

func (s *stubCache) Close() error { return nil }

type stubEventBus struct {
	events []redis.TrainingEvent
}

func (s *stubEventBus) Publish(ctx context.Context, event redis.TrainingEvent) error {
	s.events = append(s.events, event)
	return nil
}

func (s *stubEventBus) Close() error { return nil }

type stubQueue struct {
	dispatchErr error
	dispatched  []domain.TrainingJobPayload
}

func (s *stubQueue) Dispatch(ctx context.Context, job *domain.TrainingJobRun, payload domain.TrainingJobPayload) error {
	if s.dispatchErr != nil {
		return s.dispatchErr
	}
	s.dispatched = append(s.dispatched, payload)
	return nil
}

// -------------------- fixture --------------------

type trainingFixture struct {
	agents  *stubAgentRepo
	srcs    *stubSourceRepo
	states  *stubStateRepo
	jobs    *stubJobRepo
	vectors *stubVectorStore
	cache   *stubCache
	events  *stubEventBus
	queue   *stubQueue
	svc     TrainingService

	agentID uuid.UUID
	userID  uuid.UUID
}

func newTrainingFixture(t *testing.T) *trainingFixture {
	t.Helper()
	f := &trainingFixture{
		agents:  &stubAgentRepo{agents: map[uuid.UUID]*domain.Agent{}},
		srcs:    &stubSourceRepo{},
		states:  &stubStateRepo{},
		jobs:    &stubJobRepo{},
		vectors: &stubVectorStore{},
		cache:   &stubCache{},
		events:  &stubEventBus{},
		queue:   &stubQueue{},
		agentID: uuid.New(),
		userID:  uuid.New(),
	}
	f.agents.agents[f.agentID] = &domain.Agent{ID: f.agentID, OwnerUserID: f.userID, Name: "support-bot"}
	f.states.state = &domain.AgentTrainingState{
		AgentID:     f.agentID,
		OwnerUserID: f.userID,
		Status:      domain.TrainingStatusIdle,
	}
	f.svc = NewTrainingService(
		nil, logger.NewNop(),
		f.agents, f.srcs, f.states, f.jobs,
		f.vectors, f.cache, f.events, f.queue,
	)
	return f
}

func (f *trainingFixture) addEligibleSource() *domain.KnowledgeSource {
	src := &domain.KnowledgeSource{
		ID:          uuid.New(),
		AgentID:     f.agentID,
		OwnerUserID: f.userID,
		Type:        "text",
		Status:      domain.SourceStatusPending,
		Content:     "some knowledge",
	}
	f.srcs.eligible = append(f.srcs.eligible, src)
	f.srcs.all = append(f.srcs.all, src)
	return src
}

// -------------------- tests --------------------

func TestStartTrainingDispatchesJob(t *testing.T) {
	f := newTrainingFixture(t)
	f.addEligibleSource()
	f.addEligibleSource()

	job, err := f.svc.StartTraining(context.Background(), f.agentID, f.userID)
	if err != nil {
		t.Fatalf("StartTraining: %v", err)
	}
	if job.Status != domain.JobStatusQueued {
		t.Fatalf("job status = %q, want queued", job.Status)
	}
	if job.TotalSources != 2 {
		t.Fatalf("job total sources = %d, want 2", job.TotalSources)
	}
	if job.WorkflowID == "" {
		t.Fatal("job has no workflow id")
	}
	if len(f.queue.dispatched) != 1 {
		t.Fatalf("dispatched %d payloads, want 1", len(f.queue.dispatched))
	}
	if f.queue.dispatched[0].JobID != job.ID {
		t.Fatal("payload job id does not match job row")
	}
	if f.states.state.Status != domain.TrainingStatusPending {
		t.Fatalf("state = %q, want pending", f.states.state.Status)
	}
	if f.states.state.TotalSourcesCount != 2 {
		t.Fatalf("state total sources = %d, want 2", f.states.state.TotalSourcesCount)
	}
	if len(f.events.events) != 1 || f.events.events[0].Status != domain.TrainingStatusPending {
		t.Fatalf("expected one pending event, got %+v", f.events.events)
	}
}

func TestStartTrainingAgentNotFound(t *testing.T) {
	f := newTrainingFixture(t)
	_, err := f.svc.StartTraining(context.Background(), uuid.New(), f.userID)
	ae := apierr.From(err)
	if ae == nil || ae.Status != 404 {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestStartTrainingNoEligibleSources(t *testing.T) {
	f := newTrainingFixture(t)

	_, err := f.svc.StartTraining(context.Background(), f.agentID, f.userID)
	ae := apierr.From(err)
	if ae == nil || ae.Status != 422 || ae.Code != "no_eligible_sources" {
		t.Fatalf("expected 422 no_eligible_sources, got %v", err)
	}
	if f.states.state.Status != domain.TrainingStatusIdle {
		t.Fatalf("state mutated on refused start: %q", f.states.state.Status)
	}
	if len(f.jobs.jobs) != 0 {
		t.Fatal("job row created on refused start")
	}
}

func TestStartTrainingConflictWhileActive(t *testing.T) {
	f := newTrainingFixture(t)
	f.addEligibleSource()
	f.states.state.Status = domain.TrainingStatusInProgress

	_, err := f.svc.StartTraining(context.Background(), f.agentID, f.userID)
	ae := apierr.From(err)
	if ae == nil || ae.Status != 409 || ae.Code != "training_in_progress" {
		t.Fatalf("expected 409 training_in_progress, got %v", err)
	}
	if len(f.jobs.jobs) != 0 {
		t.Fatal("job row created despite conflict")
	}
	if len(f.queue.dispatched) != 0 {
		t.Fatal("dispatched despite conflict")
	}
	if f.states.state.Status != domain.TrainingStatusInProgress {
		t.Fatalf("state mutated by losing start: %q", f.states.state.Status)
	}
}

func TestStartTrainingConflictBeforeEligibilityCheck(t *testing.T) {
	f := newTrainingFixture(t)
	// Active run, zero eligible sources: the window right after sources were
	// marked embedded but before the run completed. The caller must see the
	// conflict, not a no-eligible-sources complaint.
	f.states.state.Status = domain.TrainingStatusInProgress

	_, err := f.svc.StartTraining(context.Background(), f.agentID, f.userID)
	ae := apierr.From(err)
	if ae == nil || ae.Status != 409 || ae.Code != "training_in_progress" {
		t.Fatalf("expected 409 training_in_progress, got %v", err)
	}
	if f.states.state.Status != domain.TrainingStatusInProgress {
		t.Fatalf("state mutated by losing start: %q", f.states.state.Status)
	}
	if len(f.jobs.jobs) != 0 || len(f.queue.dispatched) != 0 {
		t.Fatal("job enqueued despite conflict")
	}
}

func TestStartTrainingDispatchFailureMarksFailed(t *testing.T) {
	f := newTrainingFixture(t)
	f.addEligibleSource()
	f.queue.dispatchErr = fmt.Errorf("queue unreachable")

	_, err := f.svc.StartTraining(context.Background(), f.agentID, f.userID)
	if err == nil {
		t.Fatal("expected error")
	}
	if f.states.state.Status != domain.TrainingStatusFailed {
		t.Fatalf("state = %q, want failed", f.states.state.Status)
	}
	if len(f.jobs.jobs) != 1 || f.jobs.jobs[0].Status != domain.JobStatusFailed {
		t.Fatalf("job row not marked failed: %+v", f.jobs.jobs)
	}
}

func TestRetrainAgentResetsAndStarts(t *testing.T) {
	f := newTrainingFixture(t)
	f.addEligibleSource()
	f.states.state.Status = domain.TrainingStatusCompleted
	trained := time.Now().UTC()
	f.states.state.TrainedOn = &trained
	// Vector store outage must not block a retrain.
	f.vectors.deleteErr = fmt.Errorf("pinecone down")

	job, err := f.svc.RetrainAgent(context.Background(), f.agentID, f.userID)
	if err != nil {
		t.Fatalf("RetrainAgent: %v", err)
	}
	if job == nil || job.Status != domain.JobStatusQueued {
		t.Fatalf("expected queued job, got %+v", job)
	}
	if f.vectors.deleteCalls != 1 {
		t.Fatalf("vector delete calls = %d, want 1", f.vectors.deleteCalls)
	}
	if !f.srcs.resetCalled {
		t.Fatal("embedded flags not reset")
	}
	if f.states.state.Status != domain.TrainingStatusPending {
		t.Fatalf("state = %q, want pending", f.states.state.Status)
	}
	if f.cache.responseInvalidations == 0 || f.cache.metadataInvalidations == 0 {
		t.Fatal("caches not invalidated on retrain")
	}
}

func TestRetrainAgentRefusedWhileActive(t *testing.T) {
	f := newTrainingFixture(t)
	f.addEligibleSource()
	f.states.state.Status = domain.TrainingStatusPending

	_, err := f.svc.RetrainAgent(context.Background(), f.agentID, f.userID)
	ae := apierr.From(err)
	if ae == nil || ae.Status != 409 {
		t.Fatalf("expected 409, got %v", err)
	}
	if f.vectors.deleteCalls != 0 {
		t.Fatal("vectors deleted despite active run")
	}
	if f.srcs.resetCalled {
		t.Fatal("embedded flags reset despite active run")
	}
}

func TestRetrainAgentConflictWhenResetLosesRace(t *testing.T) {
	f := newTrainingFixture(t)
	f.addEligibleSource()
	f.states.state.Status = domain.TrainingStatusCompleted
	// A fresh start claims the slot between the active check and the reset;
	// the conditional reset refuses rather than stomping the pending row.
	f.states.resetRefused = true

	_, err := f.svc.RetrainAgent(context.Background(), f.agentID, f.userID)
	ae := apierr.From(err)
	if ae == nil || ae.Status != 409 || ae.Code != "training_in_progress" {
		t.Fatalf("expected 409 training_in_progress, got %v", err)
	}
	if len(f.queue.dispatched) != 0 {
		t.Fatal("second run dispatched despite lost reset race")
	}
	if len(f.jobs.jobs) != 0 {
		t.Fatal("job row created despite lost reset race")
	}
}

func TestCleanupAgentVectorsSkipsWhenEmpty(t *testing.T) {
	f := newTrainingFixture(t)
	f.vectors.hasVectors = false

	f.svc.CleanupAgentVectors(context.Background(), f.agentID, f.userID)
	if f.vectors.deleteCalls != 0 {
		t.Fatal("delete issued for empty namespace")
	}
}

func TestCleanupAgentVectorsSwallowsErrors(t *testing.T) {
	f := newTrainingFixture(t)
	f.vectors.hasVectors = true
	f.vectors.deleteErr = fmt.Errorf("pinecone down")

	// Must not panic or surface the error.
	f.svc.CleanupAgentVectors(context.Background(), f.agentID, f.userID)
	if f.vectors.deleteCalls != 1 {
		t.Fatalf("delete calls = %d, want 1", f.vectors.deleteCalls)
	}
}

func TestUpdateAgentTrainingStatusStampsTrainedOn(t *testing.T) {
	f := newTrainingFixture(t)

	embedded := 3
	if err := f.svc.UpdateAgentTrainingStatus(context.Background(), f.agentID, domain.TrainingStatusInProgress, 50, "", nil); err != nil {
		t.Fatalf("UpdateAgentTrainingStatus: %v", err)
	}
	if f.states.state.TrainedOn != nil {
		t.Fatal("trained_on stamped before completion")
	}

	if err := f.svc.UpdateAgentTrainingStatus(context.Background(), f.agentID, domain.TrainingStatusCompleted, 100, "", &embedded); err != nil {
		t.Fatalf("UpdateAgentTrainingStatus: %v", err)
	}
	if f.states.state.TrainedOn == nil {
		t.Fatal("trained_on not stamped on completion")
	}
	if f.states.state.EmbeddedSourcesCount != 3 {
		t.Fatalf("embedded count = %d, want 3", f.states.state.EmbeddedSourcesCount)
	}
	if f.states.state.Progress != 100 {
		t.Fatalf("progress = %d, want 100", f.states.state.Progress)
	}
	// One event per transition.
	if len(f.events.events) != 2 {
		t.Fatalf("events = %d, want 2", len(f.events.events))
	}
}

func TestTrainingWorkflowIDIsTimestamped(t *testing.T) {
	agentID := uuid.New()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got := TrainingWorkflowID(agentID, at)
	want := fmt.Sprintf("agent-training:%s:%d", agentID, at.UnixMilli())
	if got != want {
		t.Fatalf("workflow id = %q, want %q", got, want)
	}
	later := TrainingWorkflowID(agentID, at.Add(time.Millisecond))
	if later == got {
		t.Fatal("distinct trigger times must yield distinct workflow ids")
	}
}
