package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/askstack/askstack-backend/internal/requestdata"
	"github.com/askstack/askstack-backend/internal/services"
)

type AgentHandler struct {
	agents services.AgentService
}

func NewAgentHandler(agents services.AgentService) *AgentHandler {
	return &AgentHandler{agents: agents}
}

type createAgentRequest struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type addSourceRequest struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

func (h *AgentHandler) Create(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	var req createAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", fmt.Errorf("invalid request body"))
		return
	}
	agent, err := h.agents.CreateAgent(c.Request.Context(), userID, req.Name, req.Provider, req.Model)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, agent)
}

func (h *AgentHandler) List(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	agents, err := h.agents.ListAgents(c.Request.Context(), userID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"agents": agents})
}

func (h *AgentHandler) Get(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	agentID, ok := parseAgentID(c)
	if !ok {
		return
	}
	agent, err := h.agents.GetAgent(c.Request.Context(), agentID, userID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, agent)
}

func (h *AgentHandler) Delete(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	agentID, ok := parseAgentID(c)
	if !ok {
		return
	}
	if err := h.agents.DeleteAgent(c.Request.Context(), agentID, userID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}

func (h *AgentHandler) AddSource(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	agentID, ok := parseAgentID(c)
	if !ok {
		return
	}
	var req addSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", fmt.Errorf("invalid request body"))
		return
	}
	src, err := h.agents.AddSource(c.Request.Context(), agentID, userID, req.Type, req.Name, req.Content)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, src)
}

func (h *AgentHandler) ListSources(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	agentID, ok := parseAgentID(c)
	if !ok {
		return
	}
	sources, err := h.agents.ListSources(c.Request.Context(), agentID, userID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"sources": sources})
}

func parseAgentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("agentID"))
	if err != nil || id == uuid.Nil {
		RespondError(c, http.StatusBadRequest, "invalid_agent_id", fmt.Errorf("invalid agent id"))
		return uuid.Nil, false
	}
	return id, true
}
