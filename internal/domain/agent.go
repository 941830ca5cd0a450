package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Agent is a configured chatbot instance bound to a provider/model and a
// knowledge corpus owned by one user.
type Agent struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerUserID uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Name        string         `gorm:"not null" json:"name"`
	Provider    string         `gorm:"column:provider" json:"provider,omitempty"`
	Model       string         `gorm:"column:model" json:"model,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Agent) TableName() string { return "agent" }
