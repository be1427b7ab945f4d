package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pulsemesh/pulsemesh/internal/api/handlers"
	"github.com/pulsemesh/pulsemesh/internal/api/middleware"
	"github.com/pulsemesh/pulsemesh/internal/config"
	"github.com/pulsemesh/pulsemesh/internal/fleet"
	"github.com/pulsemesh/pulsemesh/internal/metrics"
	"go.uber.org/zap"
)

type Server struct {
	Config *config.Config
	Router *gin.Engine
}

func NewServer(cfg *config.Config, repo handlers.Store, registry *fleet.Registry, collector *metrics.Collector, logger *zap.Logger) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS())

	server := &Server{
		Config: cfg,
		Router: router,
	}

	h := handlers.NewHandler(repo, registry, collector, logger)
	server.setupRoutes(h)
	return server
}

func (s *Server) setupRoutes(h *handlers.Handler) {
	s.Router.GET("/health", handlers.HealthCheck)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Agent-facing routes: authenticated with the shared-secret worker token
	// and rate limited per worker.
	agent := s.Router.Group("/api/v1")
	agent.Use(middleware.AgentAuth(s.Config.Auth.AgentSecret))
	agent.Use(middleware.RateLimit(s.Config.Server.IngestRate, s.Config.Server.IngestBurst))
	{
		agent.POST("/workers/register", h.RegisterWorker)
		agent.POST("/ingest/results", h.IngestResults)
		agent.POST("/ingest/heartbeat", h.IngestHeartbeat)
		agent.GET("/agent/sites", h.AgentSites)
	}

	// Read-only query surfaces for the UI/admin/AI collaborators.
	api := s.Router.Group("/api/v1")
	{
		api.GET("/fleet/workers", h.ListWorkers)
		api.GET("/fleet/workers/ids", h.ListWorkerIDs)

		api.GET("/sites", h.ListSites)
		api.GET("/sites/:id", h.GetSite)
		api.GET("/sites/:id/status", h.GetSiteStatus)
		api.GET("/sites/:id/history", h.GetSiteHistory)
		api.GET("/sites/:id/transitions", h.GetSiteTransitions)

		api.POST("/sites", h.CreateSite)
		api.PUT("/sites/:id", h.UpdateSite)
		api.POST("/sites/:id/enable", h.EnableSite)
		api.POST("/sites/:id/disable", h.DisableSite)
	}
}
