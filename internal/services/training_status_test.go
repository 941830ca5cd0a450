package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/askstack/askstack-backend/internal/domain"
)

func TestEstimateCompletion(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 10, 0, 0, time.UTC)
	start := now.Add(-time.Minute)

	state := &domain.AgentTrainingState{
		Status:   domain.TrainingStatusInProgress,
		Progress: 50,
	}
	eta, remaining := estimateCompletion(state, &start, now)
	if eta == nil || remaining == nil {
		t.Fatal("expected an estimate while in progress")
	}
	// 50% in one minute projects one more minute.
	if *remaining < 55 || *remaining > 65 {
		t.Fatalf("remaining = %d, want about 60", *remaining)
	}
	if eta.Before(now) {
		t.Fatal("eta earlier than now")
	}
}

func TestEstimateCompletionUndefined(t *testing.T) {
	now := time.Now().UTC()
	start := now.Add(-time.Minute)

	if eta, _ := estimateCompletion(nil, &start, now); eta != nil {
		t.Fatal("estimate for missing state")
	}
	idle := &domain.AgentTrainingState{Status: domain.TrainingStatusIdle, Progress: 50}
	if eta, _ := estimateCompletion(idle, &start, now); eta != nil {
		t.Fatal("estimate for idle state")
	}
	noProgress := &domain.AgentTrainingState{Status: domain.TrainingStatusInProgress, Progress: 0}
	if eta, _ := estimateCompletion(noProgress, &start, now); eta != nil {
		t.Fatal("estimate with zero progress")
	}
}

func TestBuildSourceOverview(t *testing.T) {
	embeddedAt := time.Now().UTC()
	sources := []*domain.KnowledgeSource{
		{ID: uuid.New(), Type: "text", Status: domain.SourceStatusCompleted, IsEmbedded: true, EmbeddedAt: &embeddedAt},
		{ID: uuid.New(), Type: "text", Status: domain.SourceStatusPending},
		{ID: uuid.New(), Type: "url", Status: domain.SourceStatusFailed},
		nil,
	}
	overview := buildSourceOverview(sources)
	if overview.Total != 4 {
		t.Fatalf("total = %d, want 4", overview.Total)
	}
	if overview.ByType["text"] != 2 || overview.ByType["url"] != 1 {
		t.Fatalf("by_type = %v", overview.ByType)
	}
	if overview.ByStatus[domain.SourceStatusFailed] != 1 {
		t.Fatalf("by_status = %v", overview.ByStatus)
	}
	if len(overview.Details) != 3 {
		t.Fatalf("details = %d, want 3", len(overview.Details))
	}
}

func TestGetTrainingStatusAggregates(t *testing.T) {
	f := newTrainingFixture(t)
	f.vectors.hasVectors = true

	embeddedAt := time.Now().UTC().Add(-10 * time.Minute)
	f.srcs.all = []*domain.KnowledgeSource{
		{ID: uuid.New(), AgentID: f.agentID, Type: "text", Status: domain.SourceStatusCompleted, IsEmbedded: true, EmbeddedAt: &embeddedAt},
		{ID: uuid.New(), AgentID: f.agentID, Type: "text", Status: domain.SourceStatusFailed},
	}
	start := time.Now().UTC().Add(-2 * time.Minute)
	finish := start.Add(90 * time.Second)
	f.jobs.jobs = []*domain.TrainingJobRun{
		{ID: uuid.New(), AgentID: f.agentID, Status: domain.JobStatusCompleted, StartedAt: &start, FinishedAt: &finish},
	}
	trained := finish
	f.states.state.Status = domain.TrainingStatusCompleted
	f.states.state.Progress = 100
	f.states.state.TrainedOn = &trained

	status, err := f.svc.GetTrainingStatus(context.Background(), f.agentID, f.userID)
	if err != nil {
		t.Fatalf("GetTrainingStatus: %v", err)
	}
	if status.Agent.ID != f.agentID || status.Agent.Name != "support-bot" {
		t.Fatalf("agent summary = %+v", status.Agent)
	}
	if status.Status != domain.TrainingStatusCompleted || status.Progress != 100 {
		t.Fatalf("status = %q progress = %d", status.Status, status.Progress)
	}
	if status.Metrics.EmbeddedSources != 1 || status.Metrics.FailedSources != 1 {
		t.Fatalf("metrics = %+v", status.Metrics)
	}
	if status.Metrics.VectorCount != 1 {
		t.Fatalf("vector count = %d, want 1", status.Metrics.VectorCount)
	}
	if status.Metrics.AverageProcessingTime != 90 {
		t.Fatalf("avg processing time = %v, want 90", status.Metrics.AverageProcessingTime)
	}
	if status.Timestamps.LastTraining == nil {
		t.Fatal("last training missing")
	}
	if status.Timestamps.EstimatedCompletion != nil {
		t.Fatal("estimate present for completed run")
	}
	if len(status.History.RecentJobs) != 1 {
		t.Fatalf("recent jobs = %d, want 1", len(status.History.RecentJobs))
	}
	if len(status.History.RecentEmbeds) != 1 {
		t.Fatalf("recent embeds = %d, want 1", len(status.History.RecentEmbeds))
	}
}

func TestGetTrainingStatusUnknownAgent(t *testing.T) {
	f := newTrainingFixture(t)
	_, err := f.svc.GetTrainingStatus(context.Background(), uuid.New(), f.userID)
	if err == nil {
		t.Fatal("expected not-found error")
	}
}
