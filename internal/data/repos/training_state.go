package repos

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/askstack/askstack-backend/internal/domain"
	"github.com/askstack/askstack-backend/internal/platform/dbctx"
	"github.com/askstack/askstack-backend/internal/platform/logger"
)

type TrainingStateRepo interface {
	Create(dbc dbctx.Context, state *domain.AgentTrainingState) (*domain.AgentTrainingState, error)
	GetByAgentID(dbc dbctx.Context, agentID uuid.UUID) (*domain.AgentTrainingState, error)
	// BeginTraining atomically moves the row to pending iff no run is
	// outstanding. Returns false when another run holds the slot.
	BeginTraining(dbc dbctx.Context, agentID uuid.UUID, totalSources int) (bool, error)
	UpdateFields(dbc dbctx.Context, agentID uuid.UUID, updates map[string]interface{}) error
	// ResetToIdle clears the run fields iff no run is outstanding. Returns
	// false when a concurrent start holds the slot.
	ResetToIdle(dbc dbctx.Context, agentID uuid.UUID) (bool, error)
	DeleteByAgentID(dbc dbctx.Context, agentID uuid.UUID) error
}

type trainingStateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTrainingStateRepo(db *gorm.DB, baseLog *logger.Logger) TrainingStateRepo {
	return &trainingStateRepo{db: db, log: baseLog.With("repo", "TrainingStateRepo")}
}

func (r *trainingStateRepo) Create(dbc dbctx.Context, state *domain.AgentTrainingState) (*domain.AgentTrainingState, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if state == nil {
		return nil, nil
	}
	if state.Status == "" {
		state.Status = domain.TrainingStatusIdle
	}
	if err := transaction.WithContext(dbc.Context()).Create(state).Error; err != nil {
		return nil, err
	}
	return state, nil
}

func (r *trainingStateRepo) GetByAgentID(dbc dbctx.Context, agentID uuid.UUID) (*domain.AgentTrainingState, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if agentID == uuid.Nil {
		return nil, nil
	}
	var state domain.AgentTrainingState
	err := transaction.WithContext(dbc.Context()).
		Where("agent_id = ?", agentID).
		First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// BeginTraining is a conditional update, not check-then-act: concurrent start
// requests race on the WHERE clause and exactly one sees RowsAffected == 1.
func (r *trainingStateRepo) BeginTraining(dbc dbctx.Context, agentID uuid.UUID, totalSources int) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if agentID == uuid.Nil {
		return false, nil
	}
	res := transaction.WithContext(dbc.Context()).
		Model(&domain.AgentTrainingState{}).
		Where("agent_id = ? AND status NOT IN ?",
			agentID, []string{domain.TrainingStatusPending, domain.TrainingStatusInProgress}).
		Updates(map[string]interface{}{
			"status":                 domain.TrainingStatusPending,
			"progress":               0,
			"error":                  "",
			"embedded_sources_count": 0,
			"total_sources_count":    totalSources,
			"updated_at":             time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *trainingStateRepo) UpdateFields(dbc dbctx.Context, agentID uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if agentID == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(dbc.Context()).
		Model(&domain.AgentTrainingState{}).
		Where("agent_id = ?", agentID).
		Updates(updates).Error
}

// ResetToIdle is conditional for the same reason BeginTraining is: a retrain
// racing a fresh start must not wipe the winner's pending row.
func (r *trainingStateRepo) ResetToIdle(dbc dbctx.Context, agentID uuid.UUID) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if agentID == uuid.Nil {
		return false, nil
	}
	res := transaction.WithContext(dbc.Context()).
		Model(&domain.AgentTrainingState{}).
		Where("agent_id = ? AND status NOT IN ?",
			agentID, []string{domain.TrainingStatusPending, domain.TrainingStatusInProgress}).
		Updates(map[string]interface{}{
			"status":                 domain.TrainingStatusIdle,
			"progress":               0,
			"error":                  "",
			"embedded_sources_count": 0,
			"total_sources_count":    0,
			"trained_on":             nil,
			"updated_at":             time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *trainingStateRepo) DeleteByAgentID(dbc dbctx.Context, agentID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if agentID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Context()).
		Where("agent_id = ?", agentID).
		Delete(&domain.AgentTrainingState{}).Error
}
