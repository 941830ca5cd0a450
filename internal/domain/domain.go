package domain

// AllModels is the automigrate list, in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Agent{},
		&KnowledgeSource{},
		&AgentTrainingState{},
		&TrainingJobRun{},
	}
}
