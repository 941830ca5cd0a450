package app

import (
	"github.com/gin-gonic/gin"

	"github.com/askstack/askstack-backend/internal/handlers"
	"github.com/askstack/askstack-backend/internal/middleware"
	"github.com/askstack/askstack-backend/internal/platform/logger"
	"github.com/askstack/askstack-backend/internal/server"
)

type Middleware struct {
	Auth *middleware.AuthMiddleware
}

type Handlers struct {
	Auth     *handlers.AuthHandler
	Agent    *handlers.AgentHandler
	Training *handlers.TrainingHandler
}

func wireHandlers(log *logger.Logger, svcs Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Auth:     handlers.NewAuthHandler(svcs.Auth),
		Agent:    handlers.NewAgentHandler(svcs.Agent),
		Training: handlers.NewTrainingHandler(svcs.Training),
	}
}

func wireMiddleware(log *logger.Logger, svcs Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: middleware.NewAuthMiddleware(log, svcs.Auth),
	}
}

func wireRouter(h Handlers, mw Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		AuthHandler:     h.Auth,
		AuthMiddleware:  mw.Auth,
		AgentHandler:    h.Agent,
		TrainingHandler: h.Training,
	})
}
