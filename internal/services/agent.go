package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/askstack/askstack-backend/internal/clients/redis"
	"github.com/askstack/askstack-backend/internal/data/repos"
	"github.com/askstack/askstack-backend/internal/domain"
	"github.com/askstack/askstack-backend/internal/platform/apierr"
	"github.com/askstack/askstack-backend/internal/platform/dbctx"
	"github.com/askstack/askstack-backend/internal/platform/logger"
)

type AgentService interface {
	CreateAgent(ctx context.Context, userID uuid.UUID, name, provider, model string) (*domain.Agent, error)
	GetAgent(ctx context.Context, agentID, userID uuid.UUID) (*domain.Agent, error)
	ListAgents(ctx context.Context, userID uuid.UUID) ([]*domain.Agent, error)
	DeleteAgent(ctx context.Context, agentID, userID uuid.UUID) error
	AddSource(ctx context.Context, agentID, userID uuid.UUID, sourceType, name, content string) (*domain.KnowledgeSource, error)
	ListSources(ctx context.Context, agentID, userID uuid.UUID) ([]*domain.KnowledgeSource, error)
}

type agentService struct {
	db       *gorm.DB
	log      *logger.Logger
	agents   repos.AgentRepo
	srcs     repos.KnowledgeSourceRepo
	states   repos.TrainingStateRepo
	training TrainingService
	cache    redis.CacheInvalidator
}

func NewAgentService(
	db *gorm.DB,
	baseLog *logger.Logger,
	agents repos.AgentRepo,
	srcs repos.KnowledgeSourceRepo,
	states repos.TrainingStateRepo,
	training TrainingService,
	cache redis.CacheInvalidator,
) AgentService {
	return &agentService{
		db:       db,
		log:      baseLog.With("service", "AgentService"),
		agents:   agents,
		srcs:     srcs,
		states:   states,
		training: training,
		cache:    cache,
	}
}

// CreateAgent writes the agent and its idle training-state row together; the
// state row exists for the agent's whole lifetime.
func (s *agentService) CreateAgent(ctx context.Context, userID uuid.UUID, name, provider, model string) (*domain.Agent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apierr.New(400, "missing_name", fmt.Errorf("agent name required"))
	}
	agent := &domain.Agent{
		ID:          uuid.New(),
		OwnerUserID: userID,
		Name:        name,
		Provider:    strings.TrimSpace(provider),
		Model:       strings.TrimSpace(model),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := s.agents.Create(dbc, agent); err != nil {
			return err
		}
		_, err := s.states.Create(dbc, &domain.AgentTrainingState{
			AgentID:     agent.ID,
			OwnerUserID: userID,
			Status:      domain.TrainingStatusIdle,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	return agent, nil
}

func (s *agentService) GetAgent(ctx context.Context, agentID, userID uuid.UUID) (*domain.Agent, error) {
	agent, err := s.agents.GetByIDForOwner(dbctx.Context{Ctx: ctx}, agentID, userID)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, apierr.NotFound("agent_not_found", fmt.Errorf("agent %s not found", agentID))
	}
	return agent, nil
}

func (s *agentService) ListAgents(ctx context.Context, userID uuid.UUID) ([]*domain.Agent, error) {
	return s.agents.ListByOwner(dbctx.Context{Ctx: ctx}, userID)
}

// DeleteAgent removes the agent, its sources, and its training state, and
// best-effort clears vectors and caches. Vector-store errors never block the
// deletion.
func (s *agentService) DeleteAgent(ctx context.Context, agentID, userID uuid.UUID) error {
	agent, err := s.agents.GetByIDForOwner(dbctx.Context{Ctx: ctx}, agentID, userID)
	if err != nil {
		return err
	}
	if agent == nil {
		return apierr.NotFound("agent_not_found", fmt.Errorf("agent %s not found", agentID))
	}

	s.training.CleanupAgentVectors(ctx, agentID, userID)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := s.srcs.DeleteByAgentID(dbc, agentID); err != nil {
			return err
		}
		if err := s.states.DeleteByAgentID(dbc, agentID); err != nil {
			return err
		}
		return s.agents.Delete(dbc, agentID, userID)
	})
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}

	if s.cache != nil {
		if cerr := s.cache.InvalidateAgentCache(ctx, userID, agentID); cerr != nil {
			s.log.Warn("Response cache invalidation failed on delete", "agent_id", agentID, "error", cerr)
		}
		if cerr := s.cache.InvalidateAgentMetadata(ctx, agentID, userID); cerr != nil {
			s.log.Warn("Metadata cache invalidation failed on delete", "agent_id", agentID, "error", cerr)
		}
	}
	return nil
}

func (s *agentService) AddSource(ctx context.Context, agentID, userID uuid.UUID, sourceType, name, content string) (*domain.KnowledgeSource, error) {
	if _, err := s.GetAgent(ctx, agentID, userID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, apierr.New(400, "missing_content", fmt.Errorf("source content required"))
	}
	src := &domain.KnowledgeSource{
		ID:          uuid.New(),
		AgentID:     agentID,
		OwnerUserID: userID,
		Type:        strings.TrimSpace(sourceType),
		Name:        strings.TrimSpace(name),
		Content:     content,
		Status:      domain.SourceStatusPending,
	}
	if _, err := s.srcs.Create(dbctx.Context{Ctx: ctx}, []*domain.KnowledgeSource{src}); err != nil {
		return nil, fmt.Errorf("create source: %w", err)
	}
	return src, nil
}

func (s *agentService) ListSources(ctx context.Context, agentID, userID uuid.UUID) ([]*domain.KnowledgeSource, error) {
	if _, err := s.GetAgent(ctx, agentID, userID); err != nil {
		return nil, err
	}
	return s.srcs.GetByAgentID(dbctx.Context{Ctx: ctx}, agentID)
}
