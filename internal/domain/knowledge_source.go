package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SourceStatusPending   = "pending"
	SourceStatusCompleted = "completed"
	SourceStatusFailed    = "failed"
)

// KnowledgeSource is one ingested document or data unit belonging to an agent.
// Content holds the normalized text produced at upload time; extraction
// internals (OCR, parsing) live upstream of this table.
type KnowledgeSource struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	AgentID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"agent_id"`
	OwnerUserID uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Type        string         `gorm:"column:type;not null" json:"type"`
	Name        string         `gorm:"not null" json:"name"`
	Content     string         `gorm:"column:content;type:text" json:"-"`
	Status      string         `gorm:"column:status;not null;default:pending;index" json:"status"`
	IsEmbedded  bool           `gorm:"column:is_embedded;not null;default:false;index" json:"is_embedded"`
	EmbeddedAt  *time.Time     `gorm:"column:embedded_at" json:"embedded_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (KnowledgeSource) TableName() string { return "knowledge_source" }

// Eligible reports whether this source should be picked up by a training run:
// not yet embedded, and not in a failed state.
func (s *KnowledgeSource) Eligible() bool {
	if s == nil || s.IsEmbedded {
		return false
	}
	return s.Status == SourceStatusPending || s.Status == SourceStatusCompleted
}
