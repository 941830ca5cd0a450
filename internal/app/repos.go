package app

import (
	"gorm.io/gorm"

	"github.com/askstack/askstack-backend/internal/data/repos"
	"github.com/askstack/askstack-backend/internal/platform/logger"
)

type Repos struct {
	Users   repos.UserRepo
	Agents  repos.AgentRepo
	Sources repos.KnowledgeSourceRepo
	States  repos.TrainingStateRepo
	Jobs    repos.TrainingJobRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Users:   repos.NewUserRepo(db, log),
		Agents:  repos.NewAgentRepo(db, log),
		Sources: repos.NewKnowledgeSourceRepo(db, log),
		States:  repos.NewTrainingStateRepo(db, log),
		Jobs:    repos.NewTrainingJobRepo(db, log),
	}
}
