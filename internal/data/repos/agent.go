package repos

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/askstack/askstack-backend/internal/domain"
	"github.com/askstack/askstack-backend/internal/platform/dbctx"
	"github.com/askstack/askstack-backend/internal/platform/logger"
)

type AgentRepo interface {
	Create(dbc dbctx.Context, agent *domain.Agent) (*domain.Agent, error)
	GetByIDForOwner(dbc dbctx.Context, id uuid.UUID, ownerUserID uuid.UUID) (*domain.Agent, error)
	ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID) ([]*domain.Agent, error)
	Delete(dbc dbctx.Context, id uuid.UUID, ownerUserID uuid.UUID) error
}

type agentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAgentRepo(db *gorm.DB, baseLog *logger.Logger) AgentRepo {
	return &agentRepo{db: db, log: baseLog.With("repo", "AgentRepo")}
}

func (r *agentRepo) Create(dbc dbctx.Context, agent *domain.Agent) (*domain.Agent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if agent == nil {
		return nil, nil
	}
	if err := transaction.WithContext(dbc.Context()).Create(agent).Error; err != nil {
		return nil, err
	}
	return agent, nil
}

func (r *agentRepo) GetByIDForOwner(dbc dbctx.Context, id uuid.UUID, ownerUserID uuid.UUID) (*domain.Agent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || ownerUserID == uuid.Nil {
		return nil, nil
	}
	var agent domain.Agent
	err := transaction.WithContext(dbc.Context()).
		Where("id = ? AND owner_user_id = ?", id, ownerUserID).
		First(&agent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *agentRepo) ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID) ([]*domain.Agent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Agent
	if ownerUserID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Context()).
		Where("owner_user_id = ?", ownerUserID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *agentRepo) Delete(dbc dbctx.Context, id uuid.UUID, ownerUserID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || ownerUserID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Context()).
		Where("id = ? AND owner_user_id = ?", id, ownerUserID).
		Delete(&domain.Agent{}).Error
}
