package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/askstack/askstack-backend/internal/domain"
	"github.com/askstack/askstack-backend/internal/platform/apierr"
	"github.com/askstack/askstack-backend/internal/platform/dbctx"
)

type AgentSummary struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type SourceDetail struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Status     string     `json:"status"`
	IsEmbedded bool       `json:"is_embedded"`
	EmbeddedAt *time.Time `json:"embedded_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type SourceOverview struct {
	Total    int            `json:"total"`
	ByType   map[string]int `json:"by_type"`
	ByStatus map[string]int `json:"by_status"`
	Details  []SourceDetail `json:"details"`
}

type TrainingMetrics struct {
	EmbeddedSources       int     `json:"embedded_sources"`
	RecentlyProcessed     int     `json:"recently_processed"`
	FailedSources         int     `json:"failed_sources"`
	VectorCount           int64   `json:"vector_count"`
	AverageProcessingTime float64 `json:"average_processing_time_seconds"`
	Namespace             string  `json:"namespace"`
}

type JobSummary struct {
	ID         uuid.UUID  `json:"id"`
	Status     string     `json:"status"`
	Attempts   int        `json:"attempts"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type TrainingHistory struct {
	RecentJobs   []JobSummary   `json:"recent_jobs"`
	RecentEmbeds []SourceDetail `json:"recent_embeds"`
}

type TrainingTimestamps struct {
	LastTraining         *time.Time `json:"last_training,omitempty"`
	EstimatedCompletion  *time.Time `json:"estimated_completion,omitempty"`
	TimeRemainingSeconds *int64     `json:"time_remaining_seconds,omitempty"`
}

// TrainingStatus is the read model the HTTP layer returns for status polling.
type TrainingStatus struct {
	Agent      AgentSummary       `json:"agent"`
	Status     string             `json:"status"`
	Progress   int                `json:"progress"`
	Error      string             `json:"error,omitempty"`
	Sources    SourceOverview     `json:"sources"`
	Metrics    TrainingMetrics    `json:"metrics"`
	History    TrainingHistory    `json:"history"`
	Timestamps TrainingTimestamps `json:"timestamps"`
}

const recentWindow = time.Hour

func (s *trainingService) GetTrainingStatus(ctx context.Context, agentID, userID uuid.UUID) (*TrainingStatus, error) {
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

	sources, err := s.srcs.GetByAgentID(dbc, agentID)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}

	jobs, err := s.jobs.ListRecentByAgent(dbc, agentID, 10)
	if err != nil {
		return nil, fmt.Errorf("load job history: %w", err)
	}

	latest, err := s.jobs.GetLatestByAgent(dbc, agentID)
	if err != nil {
		return nil, fmt.Errorf("load latest job: %w", err)
	}

	out := &TrainingStatus{
		Agent:  AgentSummary{ID: agent.ID, Name: agent.Name},
		Status: domain.TrainingStatusIdle,
	}
	if state != nil {
		out.Status = state.Status
		out.Progress = state.Progress
		out.Error = state.Error
		out.Timestamps.LastTraining = state.TrainedOn
	}

	out.Sources = buildSourceOverview(sources)
	out.Metrics = s.buildMetrics(ctx, dbc, agentID, userID, sources, jobs)
	out.History = buildHistory(sources, jobs)
	var runStart *time.Time
	if latest != nil {
		runStart = latest.StartedAt
	}
	out.Timestamps.EstimatedCompletion, out.Timestamps.TimeRemainingSeconds =
		estimateCompletion(state, runStart, time.Now().UTC())

	return out, nil
}

func buildSourceOverview(sources []*domain.KnowledgeSource) SourceOverview {
	overview := SourceOverview{
		Total:    len(sources),
		ByType:   map[string]int{},
		ByStatus: map[string]int{},
		Details:  make([]SourceDetail, 0, len(sources)),
	}
	for _, src := range sources {
		if src == nil {
			continue
		}
		overview.ByType[src.Type]++
		overview.ByStatus[src.Status]++
		overview.Details = append(overview.Details, SourceDetail{
			ID:         src.ID,
			Name:       src.Name,
			Type:       src.Type,
			Status:     src.Status,
			IsEmbedded: src.IsEmbedded,
			EmbeddedAt: src.EmbeddedAt,
			CreatedAt:  src.CreatedAt,
		})
	}
	return overview
}

func (s *trainingService) buildMetrics(ctx context.Context, dbc dbctx.Context, agentID, userID uuid.UUID, sources []*domain.KnowledgeSource, jobs []*domain.TrainingJobRun) TrainingMetrics {
	m := TrainingMetrics{Namespace: s.vectors.Namespace(userID, agentID)}

	for _, src := range sources {
		if src != nil && src.IsEmbedded {
			m.EmbeddedSources++
		}
		if src != nil && src.Status == domain.SourceStatusFailed {
			m.FailedSources++
		}
	}

	if n, err := s.srcs.CountEmbeddedSince(dbc, agentID, time.Now().UTC().Add(-recentWindow)); err == nil {
		m.RecentlyProcessed = int(n)
	}

	// Live count; a vector-store hiccup degrades the metric, not the request.
	if n, err := s.vectors.GetAgentVectorCount(ctx, userID, agentID); err == nil {
		m.VectorCount = n
	} else {
		s.log.Debug("Vector count unavailable", "agent_id", agentID, "error", err)
	}

	var total time.Duration
	var finished int
	for _, job := range jobs {
		if job == nil || job.Status != domain.JobStatusCompleted || job.StartedAt == nil || job.FinishedAt == nil {
			continue
		}
		total += job.FinishedAt.Sub(*job.StartedAt)
		finished++
	}
	if finished > 0 {
		m.AverageProcessingTime = (total / time.Duration(finished)).Seconds()
	}
	return m
}

func buildHistory(sources []*domain.KnowledgeSource, jobs []*domain.TrainingJobRun) TrainingHistory {
	h := TrainingHistory{
		RecentJobs:   make([]JobSummary, 0, len(jobs)),
		RecentEmbeds: make([]SourceDetail, 0, 10),
	}
	for _, job := range jobs {
		if job == nil {
			continue
		}
		h.RecentJobs = append(h.RecentJobs, JobSummary{
			ID:         job.ID,
			Status:     job.Status,
			Attempts:   job.Attempts,
			Error:      job.Error,
			CreatedAt:  job.CreatedAt,
			StartedAt:  job.StartedAt,
			FinishedAt: job.FinishedAt,
		})
	}

	embedded := make([]*domain.KnowledgeSource, 0, len(sources))
	for _, src := range sources {
		if src != nil && src.IsEmbedded && src.EmbeddedAt != nil {
			embedded = append(embedded, src)
		}
	}
	sort.Slice(embedded, func(i, j int) bool {
		return embedded[i].EmbeddedAt.After(*embedded[j].EmbeddedAt)
	})
	for i, src := range embedded {
		if i == 10 {
			break
		}
		h.RecentEmbeds = append(h.RecentEmbeds, SourceDetail{
			ID:         src.ID,
			Name:       src.Name,
			Type:       src.Type,
			Status:     src.Status,
			IsEmbedded: true,
			EmbeddedAt: src.EmbeddedAt,
			CreatedAt:  src.CreatedAt,
		})
	}
	return h
}

// estimateCompletion projects the finish time as elapsed / (progress/100),
// defined only while a run is in progress and has made measurable headway.
func estimateCompletion(state *domain.AgentTrainingState, startedAt *time.Time, now time.Time) (*time.Time, *int64) {
	if state == nil || state.Status != domain.TrainingStatusInProgress || state.Progress <= 0 {
		return nil, nil
	}
	start := state.UpdatedAt
	if startedAt != nil {
		start = *startedAt
	}
	elapsed := now.Sub(start)
	if elapsed <= 0 {
		return nil, nil
	}
	totalEstimated := time.Duration(float64(elapsed) * 100.0 / float64(state.Progress))
	eta := start.Add(totalEstimated)
	remaining := int64(eta.Sub(now).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return &eta, &remaining
}
