package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// TrainingJobRun mirrors one enqueued training run for operator visibility and
// retention housekeeping. Execution state (retries, backoff, timeout) is owned
// by the queue; this row records what it observed. Payload is immutable once
// enqueued.
type TrainingJobRun struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	AgentID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"agent_id"`
	OwnerUserID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	WorkflowID   string         `gorm:"column:workflow_id;not null;index" json:"workflow_id"`
	Status       string         `gorm:"column:status;not null;default:queued;index" json:"status"`
	Attempts     int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	TotalSources int            `gorm:"column:total_sources;not null;default:0" json:"total_sources"`
	Error        string         `gorm:"column:error" json:"error,omitempty"`
	Payload      datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	Result       datatypes.JSON `gorm:"column:result;type:jsonb" json:"result"`
	StartedAt    *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt   *time.Time     `gorm:"column:finished_at;index" json:"finished_at,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (TrainingJobRun) TableName() string { return "training_job_run" }

// TrainingJobPayload is the queue job payload. Field names are part of the
// wire shape; do not rename without migrating queued jobs.
type TrainingJobPayload struct {
	JobID        uuid.UUID `json:"job_id"`
	AgentID      uuid.UUID `json:"agent_id"`
	UserID       uuid.UUID `json:"user_id"`
	TotalSources int       `json:"total_sources"`
}

// TrainingJobResult is the queue job result shape.
type TrainingJobResult struct {
	Success          bool   `json:"success"`
	ProcessedSources int    `json:"processed_sources"`
	FailedSources    int    `json:"failed_sources"`
	Error            string `json:"error,omitempty"`
}
