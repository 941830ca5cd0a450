package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	TrainingStatusIdle       = "idle"
	TrainingStatusPending    = "pending"
	TrainingStatusInProgress = "in-progress"
	TrainingStatusCompleted  = "completed"
	TrainingStatusFailed     = "failed"
)

// AgentTrainingState is the authoritative record of where an agent stands in
// its training lifecycle. One row per agent, created alongside the agent and
// mutated in place; it is only removed when the agent is deleted.
type AgentTrainingState struct {
	AgentID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"agent_id"`
	OwnerUserID          uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Status               string     `gorm:"column:status;not null;default:idle;index" json:"status"`
	Progress             int        `gorm:"column:progress;not null;default:0" json:"progress"`
	Error                string     `gorm:"column:error" json:"error,omitempty"`
	EmbeddedSourcesCount int        `gorm:"column:embedded_sources_count;not null;default:0" json:"embedded_sources_count"`
	TotalSourcesCount    int        `gorm:"column:total_sources_count;not null;default:0" json:"total_sources_count"`
	TrainedOn            *time.Time `gorm:"column:trained_on" json:"trained_on,omitempty"`
	CreatedAt            time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (AgentTrainingState) TableName() string { return "agent_training_state" }

// TrainingActive reports whether a run is outstanding for the agent.
// Start requests must be refused while this is true (single-flight).
func (s *AgentTrainingState) TrainingActive() bool {
	if s == nil {
		return false
	}
	return s.Status == TrainingStatusPending || s.Status == TrainingStatusInProgress
}
