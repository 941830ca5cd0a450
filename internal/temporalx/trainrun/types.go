package trainrun

import "github.com/google/uuid"

const (
	WorkflowName          = "agent_training"
	ActivityRunPipeline   = "agent_training_run"
	ActivityRecordFailure = "agent_training_record_failure"
)

// Input is the full workflow payload. Policy knobs travel with the run so a
// replay sees the values the run was dispatched with, not whatever the env
// says at replay time.
type Input struct {
	JobID        uuid.UUID `json:"job_id"`
	AgentID      uuid.UUID `json:"agent_id"`
	UserID       uuid.UUID `json:"user_id"`
	TotalSources int       `json:"total_sources"`

	MaxAttempts    int `json:"max_attempts"`
	BackoffSeconds int `json:"backoff_seconds"`
	TimeoutSeconds int `json:"timeout_seconds"`
}
