package api

import (
	"github.com/gin-gonic/gin"
	"github.com/leozw/portfolio-guardian/internal/api/handlers"
	"github.com/leozw/portfolio-guardian/internal/api/middleware"
	"github.com/leozw/portfolio-guardian/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type Server struct {
	Config  *config.Config
	Router  *gin.Engine
	handler *handlers.Handler
	metrics prometheus.Gatherer
}

func NewServer(cfg *config.Config, h *handlers.Handler, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.New()

	router.Use(middleware.Logger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	server := &Server{
		Config:  cfg,
		Router:  router,
		handler: h,
		metrics: gatherer,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.Router.GET("/health", s.handler.Health)
	s.Router.GET("/ready", s.handler.Ready)
	if s.metrics != nil {
		s.Router.GET("/metrics", handlers.Metrics(s.metrics))
	}

	v1 := s.Router.Group("/v1")
	v1.Use(middleware.AuthRequired(s.Config.Auth.JWTSecret))
	{
		v1.GET("/sweeps", s.handler.ListSweeps)
		v1.POST("/sweeps/:name/run", s.handler.RunSweep)
		v1.GET("/review/sla", s.handler.ReviewSLA)
		v1.GET("/notifications", s.handler.ListNotifications)
	}
}
