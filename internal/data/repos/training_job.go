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

type TrainingJobRepo interface {
	Create(dbc dbctx.Context, job *domain.TrainingJobRun) (*domain.TrainingJobRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.TrainingJobRun, error)
	GetLatestByAgent(dbc dbctx.Context, agentID uuid.UUID) (*domain.TrainingJobRun, error)
	ListRecentByAgent(dbc dbctx.Context, agentID uuid.UUID, limit int) ([]*domain.TrainingJobRun, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	IncrementAttempts(dbc dbctx.Context, id uuid.UUID) error
	// PurgeFinishedBefore hard-deletes terminal jobs whose finished_at
	// predates the cutoff. Housekeeping only.
	PurgeFinishedBefore(dbc dbctx.Context, status string, cutoff time.Time) (int64, error)
	// TrimToRecent hard-deletes all but the newest keep rows per status.
	TrimToRecent(dbc dbctx.Context, status string, keep int) (int64, error)
}

type trainingJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTrainingJobRepo(db *gorm.DB, baseLog *logger.Logger) TrainingJobRepo {
	return &trainingJobRepo{db: db, log: baseLog.With("repo", "TrainingJobRepo")}
}

func (r *trainingJobRepo) Create(dbc dbctx.Context, job *domain.TrainingJobRun) (*domain.TrainingJobRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if job == nil {
		return nil, nil
	}
	if err := transaction.WithContext(dbc.Context()).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *trainingJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.TrainingJobRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var job domain.TrainingJobRun
	err := transaction.WithContext(dbc.Context()).
		Where("id = ?", id).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *trainingJobRepo) GetLatestByAgent(dbc dbctx.Context, agentID uuid.UUID) (*domain.TrainingJobRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if agentID == uuid.Nil {
		return nil, nil
	}
	var job domain.TrainingJobRun
	err := transaction.WithContext(dbc.Context()).
		Where("agent_id = ?", agentID).
		Order("created_at DESC").
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *trainingJobRepo) ListRecentByAgent(dbc dbctx.Context, agentID uuid.UUID, limit int) ([]*domain.TrainingJobRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.TrainingJobRun
	if agentID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 {
		limit = 10
	}
	if err := transaction.WithContext(dbc.Context()).
		Where("agent_id = ?", agentID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *trainingJobRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(dbc.Context()).
		Model(&domain.TrainingJobRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *trainingJobRepo) IncrementAttempts(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Context()).
		Model(&domain.TrainingJobRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *trainingJobRepo) PurgeFinishedBefore(dbc dbctx.Context, status string, cutoff time.Time) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if status == "" {
		return 0, nil
	}
	res := transaction.WithContext(dbc.Context()).
		Unscoped().
		Where("status = ? AND finished_at IS NOT NULL AND finished_at < ?", status, cutoff).
		Delete(&domain.TrainingJobRun{})
	return res.RowsAffected, res.Error
}

func (r *trainingJobRepo) TrimToRecent(dbc dbctx.Context, status string, keep int) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if status == "" || keep < 0 {
		return 0, nil
	}
	var keepIDs []uuid.UUID
	if keep > 0 {
		if err := transaction.WithContext(dbc.Context()).
			Model(&domain.TrainingJobRun{}).
			Where("status = ?", status).
			Order("created_at DESC").
			Limit(keep).
			Pluck("id", &keepIDs).Error; err != nil {
			return 0, err
		}
	}
	q := transaction.WithContext(dbc.Context()).
		Unscoped().
		Where("status = ?", status)
	if len(keepIDs) > 0 {
		q = q.Where("id NOT IN ?", keepIDs)
	}
	res := q.Delete(&domain.TrainingJobRun{})
	return res.RowsAffected, res.Error
}
