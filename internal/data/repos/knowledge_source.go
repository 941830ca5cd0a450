package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/askstack/askstack-backend/internal/domain"
	"github.com/askstack/askstack-backend/internal/platform/dbctx"
	"github.com/askstack/askstack-backend/internal/platform/logger"
)

type KnowledgeSourceRepo interface {
	Create(dbc dbctx.Context, sources []*domain.KnowledgeSource) ([]*domain.KnowledgeSource, error)
	GetByAgentID(dbc dbctx.Context, agentID uuid.UUID) ([]*domain.KnowledgeSource, error)
	GetEligibleByAgentID(dbc dbctx.Context, agentID uuid.UUID) ([]*domain.KnowledgeSource, error)
	CountEligibleByAgentID(dbc dbctx.Context, agentID uuid.UUID) (int64, error)
	MarkEmbedded(dbc dbctx.Context, sourceIDs []uuid.UUID) error
	ResetEmbeddedByAgentID(dbc dbctx.Context, agentID uuid.UUID) error
	CountEmbeddedSince(dbc dbctx.Context, agentID uuid.UUID, since time.Time) (int64, error)
	DeleteByAgentID(dbc dbctx.Context, agentID uuid.UUID) error
}

type knowledgeSourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKnowledgeSourceRepo(db *gorm.DB, baseLog *logger.Logger) KnowledgeSourceRepo {
	return &knowledgeSourceRepo{db: db, log: baseLog.With("repo", "KnowledgeSourceRepo")}
}

func (r *knowledgeSourceRepo) Create(dbc dbctx.Context, sources []*domain.KnowledgeSource) ([]*domain.KnowledgeSource, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(sources) == 0 {
		return []*domain.KnowledgeSource{}, nil
	}

	// Keep batches small because Content is large.
	const batchSize = 100

	if err := transaction.WithContext(dbc.Context()).CreateInBatches(sources, batchSize).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

func (r *knowledgeSourceRepo) GetByAgentID(dbc dbctx.Context, agentID uuid.UUID) ([]*domain.KnowledgeSource, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.KnowledgeSource
	if agentID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Context()).
		Where("agent_id = ?", agentID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// GetEligibleByAgentID returns sources a training run may embed: not yet
// embedded and not failed.
func (r *knowledgeSourceRepo) GetEligibleByAgentID(dbc dbctx.Context, agentID uuid.UUID) ([]*domain.KnowledgeSource, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.KnowledgeSource
	if agentID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Context()).
		Where("agent_id = ? AND is_embedded = ? AND status IN ?",
			agentID, false, []string{domain.SourceStatusPending, domain.SourceStatusCompleted}).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *knowledgeSourceRepo) CountEligibleByAgentID(dbc dbctx.Context, agentID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if agentID == uuid.Nil {
		return 0, nil
	}
	var n int64
	err := transaction.WithContext(dbc.Context()).
		Model(&domain.KnowledgeSource{}).
		Where("agent_id = ? AND is_embedded = ? AND status IN ?",
			agentID, false, []string{domain.SourceStatusPending, domain.SourceStatusCompleted}).
		Count(&n).Error
	return n, err
}

// MarkEmbedded flips is_embedded for the given sources and stamps embedded_at.
// Called only after their vectors are durably upserted.
func (r *knowledgeSourceRepo) MarkEmbedded(dbc dbctx.Context, sourceIDs []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(sourceIDs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return transaction.WithContext(dbc.Context()).
		Model(&domain.KnowledgeSource{}).
		Where("id IN ?", sourceIDs).
		Updates(map[string]interface{}{
			"is_embedded": true,
			"status":      domain.SourceStatusCompleted,
			"embedded_at": now,
			"updated_at":  now,
		}).Error
}

func (r *knowledgeSourceRepo) ResetEmbeddedByAgentID(dbc dbctx.Context, agentID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if agentID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Context()).
		Model(&domain.KnowledgeSource{}).
		Where("agent_id = ?", agentID).
		Updates(map[string]interface{}{
			"is_embedded": false,
			"embedded_at": nil,
			"updated_at":  time.Now().UTC(),
		}).Error
}

func (r *knowledgeSourceRepo) CountEmbeddedSince(dbc dbctx.Context, agentID uuid.UUID, since time.Time) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if agentID == uuid.Nil {
		return 0, nil
	}
	var n int64
	err := transaction.WithContext(dbc.Context()).
		Model(&domain.KnowledgeSource{}).
		Where("agent_id = ? AND is_embedded = ? AND embedded_at >= ?", agentID, true, since).
		Count(&n).Error
	return n, err
}

func (r *knowledgeSourceRepo) DeleteByAgentID(dbc dbctx.Context, agentID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if agentID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Context()).
		Where("agent_id = ?", agentID).
		Delete(&domain.KnowledgeSource{}).Error
}
