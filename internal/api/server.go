// Package api exposes the administrative HTTP surface consumed by the
// external admin UI. Authorization is handled upstream; these handlers are
// thin facades over the service layer.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/content-scheduler/internal/service"
	"github.com/content-scheduler/pkg/logger"
)

// Server is the admin HTTP server.
type Server struct {
	admin  *service.Admin
	router *gin.Engine
	log    *logger.Logger
}

// NewServer creates the admin HTTP server and registers its routes.
func NewServer(admin *service.Admin, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		admin:  admin,
		router: router,
		log:    log.WithComponent("api"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.router.Group("/api")
	{
		schedules := api.Group("/schedules")
		{
			schedules.POST("", s.createSchedule)
			schedules.GET("", s.listSchedules)
			schedules.GET("/:id", s.getSchedule)
			schedules.PUT("/:id", s.updateSchedule)
			schedules.DELETE("/:id", s.deleteSchedule)

			schedules.POST("/:id/pause", s.pauseSchedule)
			schedules.POST("/:id/resume", s.resumeSchedule)
			schedules.POST("/:id/run", s.runSchedule)

			schedules.GET("/:id/logs", s.listLogs)
			schedules.GET("/:id/stats", s.getStats)

			schedules.POST("/:id/fixed-topics", s.createFixedTopic)
			schedules.GET("/:id/fixed-topics", s.listFixedTopics)
			schedules.POST("/:id/dynamic-topics", s.createDynamicTopic)
			schedules.GET("/:id/dynamic-topics", s.listDynamicTopics)
		}

		api.PUT("/fixed-topics/:id", s.updateFixedTopic)
		api.DELETE("/fixed-topics/:id", s.deleteFixedTopic)

		api.PUT("/dynamic-topics/:id", s.updateDynamicTopic)
		api.POST("/dynamic-topics/:id/retire", s.retireDynamicTopic)
		api.DELETE("/dynamic-topics/:id", s.deleteDynamicTopic)

		api.GET("/posts", s.listPosts)
		api.GET("/posts/:id", s.getPost)
	}
}

// Run starts the server on the given address, blocking until it exits.
func (s *Server) Run(addr string) error {
	s.log.Info().Str("addr", addr).Msg("Admin API listening")
	return s.router.Run(addr)
}

// Handler exposes the underlying handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
