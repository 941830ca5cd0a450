package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/askstack/askstack-backend/internal/requestdata"
	"github.com/askstack/askstack-backend/internal/services"
)

type TrainingHandler struct {
	training services.TrainingService
}

func NewTrainingHandler(training services.TrainingService) *TrainingHandler {
	return &TrainingHandler{training: training}
}

func (h *TrainingHandler) Start(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	agentID, ok := parseAgentID(c)
	if !ok {
		return
	}
	job, err := h.training.StartTraining(c.Request.Context(), agentID, userID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}

func (h *TrainingHandler) Status(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	agentID, ok := parseAgentID(c)
	if !ok {
		return
	}
	status, err := h.training.GetTrainingStatus(c.Request.Context(), agentID, userID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, status)
}

func (h *TrainingHandler) Retrain(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	agentID, ok := parseAgentID(c)
	if !ok {
		return
	}
	job, err := h.training.RetrainAgent(c.Request.Context(), agentID, userID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}
