package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/askstack/askstack-backend/internal/domain"
	"github.com/askstack/askstack-backend/internal/platform/dbctx"
	"github.com/askstack/askstack-backend/internal/platform/logger"
)

func newJobRepo(t *testing.T) (TrainingJobRepo, dbctx.Context) {
	t.Helper()
	db := newTestDB(t)
	return NewTrainingJobRepo(db, logger.NewNop()), dbctx.Context{Ctx: context.Background()}
}

func seedJob(t *testing.T, repo TrainingJobRepo, dbc dbctx.Context, job domain.TrainingJobRun) *domain.TrainingJobRun {
	t.Helper()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.AgentID == uuid.Nil {
		job.AgentID = uuid.New()
	}
	if job.OwnerUserID == uuid.Nil {
		job.OwnerUserID = uuid.New()
	}
	if job.WorkflowID == "" {
		job.WorkflowID = "agent-training:" + job.AgentID.String() + ":1"
	}
	created, err := repo.Create(dbc, &job)
	if err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return created
}

func TestIncrementAttempts(t *testing.T) {
	repo, dbc := newJobRepo(t)
	job := seedJob(t, repo, dbc, domain.TrainingJobRun{Status: domain.JobStatusQueued})

	if err := repo.IncrementAttempts(dbc, job.ID); err != nil {
		t.Fatalf("IncrementAttempts: %v", err)
	}
	if err := repo.IncrementAttempts(dbc, job.ID); err != nil {
		t.Fatalf("IncrementAttempts: %v", err)
	}

	got, err := repo.GetByID(dbc, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", got.Attempts)
	}
}

func TestGetLatestByAgentOrdersByCreation(t *testing.T) {
	repo, dbc := newJobRepo(t)
	agentID := uuid.New()

	old := seedJob(t, repo, dbc, domain.TrainingJobRun{
		AgentID:   agentID,
		Status:    domain.JobStatusCompleted,
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	})
	latest := seedJob(t, repo, dbc, domain.TrainingJobRun{
		AgentID:   agentID,
		Status:    domain.JobStatusQueued,
		CreatedAt: time.Now().UTC(),
	})

	got, err := repo.GetLatestByAgent(dbc, agentID)
	if err != nil {
		t.Fatalf("GetLatestByAgent: %v", err)
	}
	if got == nil || got.ID != latest.ID {
		t.Fatalf("latest = %v, want %s (old %s)", got, latest.ID, old.ID)
	}

	listed, err := repo.ListRecentByAgent(dbc, agentID, 10)
	if err != nil {
		t.Fatalf("ListRecentByAgent: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != latest.ID {
		t.Fatalf("listed = %d rows, first %v", len(listed), listed[0].ID)
	}
}

func TestPurgeFinishedBefore(t *testing.T) {
	repo, dbc := newJobRepo(t)
	now := time.Now().UTC()
	oldFinish := now.Add(-48 * time.Hour)
	recentFinish := now.Add(-time.Hour)

	staleCompleted := seedJob(t, repo, dbc, domain.TrainingJobRun{
		Status: domain.JobStatusCompleted, FinishedAt: &oldFinish,
	})
	freshCompleted := seedJob(t, repo, dbc, domain.TrainingJobRun{
		Status: domain.JobStatusCompleted, FinishedAt: &recentFinish,
	})
	staleFailed := seedJob(t, repo, dbc, domain.TrainingJobRun{
		Status: domain.JobStatusFailed, FinishedAt: &oldFinish,
	})
	running := seedJob(t, repo, dbc, domain.TrainingJobRun{
		Status: domain.JobStatusRunning,
	})

	purged, err := repo.PurgeFinishedBefore(dbc, domain.JobStatusCompleted, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeFinishedBefore: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}

	if got, _ := repo.GetByID(dbc, staleCompleted.ID); got != nil {
		t.Fatal("stale completed job survived purge")
	}
	for _, keep := range []*domain.TrainingJobRun{freshCompleted, staleFailed, running} {
		got, err := repo.GetByID(dbc, keep.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got == nil {
			t.Fatalf("job %s (%s) purged unexpectedly", keep.ID, keep.Status)
		}
	}
}

func TestTrimToRecentKeepsNewest(t *testing.T) {
	repo, dbc := newJobRepo(t)
	now := time.Now().UTC()

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		job := seedJob(t, repo, dbc, domain.TrainingJobRun{
			Status:    domain.JobStatusCompleted,
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		})
		ids = append(ids, job.ID)
	}
	failed := seedJob(t, repo, dbc, domain.TrainingJobRun{
		Status:    domain.JobStatusFailed,
		CreatedAt: now.Add(-time.Hour),
	})

	trimmed, err := repo.TrimToRecent(dbc, domain.JobStatusCompleted, 3)
	if err != nil {
		t.Fatalf("TrimToRecent: %v", err)
	}
	if trimmed != 2 {
		t.Fatalf("trimmed = %d, want 2", trimmed)
	}

	// Oldest two are gone, newest three remain.
	for _, id := range ids[:2] {
		if got, _ := repo.GetByID(dbc, id); got != nil {
			t.Fatalf("old job %s survived trim", id)
		}
	}
	for _, id := range ids[2:] {
		got, err := repo.GetByID(dbc, id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got == nil {
			t.Fatalf("recent job %s trimmed", id)
		}
	}
	if got, _ := repo.GetByID(dbc, failed.ID); got == nil {
		t.Fatal("trim crossed status boundary")
	}
}

func TestUpdateFieldsStampsTerminalState(t *testing.T) {
	repo, dbc := newJobRepo(t)
	job := seedJob(t, repo, dbc, domain.TrainingJobRun{Status: domain.JobStatusRunning})

	finished := time.Now().UTC()
	err := repo.UpdateFields(dbc, job.ID, map[string]interface{}{
		"status":      domain.JobStatusFailed,
		"error":       "retries exhausted",
		"finished_at": finished,
	})
	if err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}

	got, err := repo.GetByID(dbc, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.JobStatusFailed || got.Error != "retries exhausted" {
		t.Fatalf("job = %+v", got)
	}
	if got.FinishedAt == nil {
		t.Fatal("finished_at not stamped")
	}
}
