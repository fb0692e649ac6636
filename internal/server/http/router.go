// Package http exposes the REST and WebSocket surface over the coordinator.
package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agentstation/internal/knowledge"
	"agentstation/internal/logging"
	"agentstation/internal/server/app"
	"agentstation/internal/storage"
	"agentstation/internal/tools"
)

// Server bundles the handler dependencies.
type Server struct {
	coordinator *app.Coordinator
	broadcaster *app.Broadcaster
	repo        *storage.Repository
	registry    *tools.Registry
	knowledge   *knowledge.Base
	logger      logging.Logger
	started     time.Time
}

// NewServer constructs the handler set. knowledge may be nil.
func NewServer(coordinator *app.Coordinator, broadcaster *app.Broadcaster, repo *storage.Repository, registry *tools.Registry, kb *knowledge.Base, logger logging.Logger) *Server {
	return &Server{
		coordinator: coordinator,
		broadcaster: broadcaster,
		repo:        repo,
		registry:    registry,
		knowledge:   kb,
		logger:      logging.OrNop(logger),
		started:     time.Now(),
	}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router(gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", s.handleHealth)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	r.POST("/conversations", s.handleCreateConversation)
	r.GET("/conversations/:id", s.handleGetConversation)
	r.GET("/conversations/:id/tasks", s.handleListConversationTasks)
	r.GET("/conversations/:id/messages", s.handleListConversationMessages)
	r.DELETE("/conversations/:id", s.handleDeleteConversation)
	r.GET("/users/:user_id/conversations", s.handleListUserConversations)

	r.POST("/tasks", s.handleCreateTask)
	r.GET("/tasks/:id", s.handleGetTask)
	r.POST("/tasks/resume", s.handleResumeTask)

	r.GET("/tools", s.handleListTools)
	r.GET("/tools/:name", s.handleGetTool)

	if s.knowledge != nil {
		r.POST("/knowledge", s.handleAddKnowledge)
		r.GET("/knowledge/search", s.handleSearchKnowledge)
		r.GET("/knowledge/stats", s.handleKnowledgeStats)
	}

	r.GET("/ws/:conversation_id", s.handleWebSocket)

	return r
}
