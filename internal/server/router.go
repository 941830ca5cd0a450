package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/askstack/askstack-backend/internal/handlers"
	"github.com/askstack/askstack-backend/internal/middleware"
	"github.com/askstack/askstack-backend/internal/platform/envutil"
)

type RouterConfig struct {
	AuthHandler     *handlers.AuthHandler
	AuthMiddleware  *middleware.AuthMiddleware
	AgentHandler    *handlers.AgentHandler
	TrainingHandler *handlers.TrainingHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware(envutil.String("OTEL_SERVICE_NAME", "askstack-backend")))
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5173",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// Public
	router.GET("/healthcheck", handlers.HealthCheck)
	router.POST("/register", cfg.AuthHandler.Register)
	router.POST("/login", cfg.AuthHandler.Login)

	// Protected
	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())

	// Agents
	api.POST("/agents", cfg.AgentHandler.Create)
	api.GET("/agents", cfg.AgentHandler.List)
	api.GET("/agents/:agentID", cfg.AgentHandler.Get)
	api.DELETE("/agents/:agentID", cfg.AgentHandler.Delete)
	api.POST("/agents/:agentID/sources", cfg.AgentHandler.AddSource)
	api.GET("/agents/:agentID/sources", cfg.AgentHandler.ListSources)

	// Training
	api.POST("/agents/:agentID/train", cfg.TrainingHandler.Start)
	api.GET("/agents/:agentID/train/status", cfg.TrainingHandler.Status)
	api.POST("/agents/:agentID/retrain", cfg.TrainingHandler.Retrain)

	return router
}
