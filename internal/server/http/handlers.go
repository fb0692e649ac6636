package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"agentstation/internal/checkpoint"
	"agentstation/internal/knowledge"
	"agentstation/internal/storage"
	"agentstation/internal/utils/id"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	})
}

// --- conversations ---

type createConversationRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Title  string `json:"title"`
}

func (s *Server) handleCreateConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	now := time.Now().Unix()
	conv := storage.Conversation{
		ID:        id.NewConversationID(),
		UserID:    req.UserID,
		Title:     req.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateConversation(c.Request.Context(), conv); err != nil {
		s.logger.Error("create conversation: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create conversation"})
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (s *Server) handleGetConversation(c *gin.Context) {
	conv, err := s.repo.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondStorageError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (s *Server) handleListUserConversations(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	convs, err := s.repo.ListConversations(c.Request.Context(), c.Param("user_id"), limit)
	if err != nil {
		s.respondStorageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (s *Server) handleListConversationTasks(c *gin.Context) {
	tasks, err := s.repo.ListTasks(c.Request.Context(), c.Param("id"), queryInt(c, "limit", 50))
	if err != nil {
		s.respondStorageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (s *Server) handleListConversationMessages(c *gin.Context) {
	msgs, err := s.repo.ListMessages(c.Request.Context(), c.Param("id"), queryInt(c, "limit", 200))
	if err != nil {
		s.respondStorageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (s *Server) handleDeleteConversation(c *gin.Context) {
	if err := s.repo.DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
		s.respondStorageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// --- tasks ---

type createTaskRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	UserID         string `json:"user_id" binding:"required"`
	UserInput      string `json:"user_input" binding:"required"`
}

// handleCreateTask creates the task record; execution runs under a
// streaming subscription (start_task) or a resume.
func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := s.coordinator.CreateTask(c.Request.Context(), req.ConversationID, req.UserID, req.UserInput)
	if err != nil {
		s.respondStorageError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.coordinator.GetTaskState(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondStorageError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

type resumeTaskRequest struct {
	TaskID             string         `json:"task_id" binding:"required"`
	UserProvidedConfig map[string]any `json:"user_provided_config"`
}

func (s *Server) handleResumeTask(c *gin.Context) {
	var req resumeTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	final, err := s.coordinator.ResumeTask(c.Request.Context(), req.TaskID, req.UserProvidedConfig)
	if err != nil {
		if errors.Is(err, checkpoint.ErrThreadNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		s.respondStorageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"task_id":      req.TaskID,
		"final_status": final.FinalStatus,
		"state":        final,
	})
}

// --- tools ---

func (s *Server) handleListTools(c *gin.Context) {
	if tag := c.Query("tag"); tag != "" {
		c.JSON(http.StatusOK, gin.H{"tools": s.registry.SearchByTag(tag)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tools": s.registry.ListSchemas()})
}

func (s *Server) handleGetTool(c *gin.Context) {
	schema, _, err := s.registry.Get(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, schema)
}

// --- knowledge ---

type addKnowledgeRequest struct {
	Documents []knowledge.Document `json:"documents" binding:"required"`
}

func (s *Server) handleAddKnowledge(c *gin.Context) {
	var req addKnowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	stored, err := s.knowledge.Add(c.Request.Context(), req.Documents)
	if err != nil {
		s.logger.Error("add knowledge: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store documents"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"documents": stored})
}

func (s *Server) handleSearchKnowledge(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter is required"})
		return
	}
	results, err := s.knowledge.Query(c.Request.Context(), query, queryInt(c, "k", 5))
	if err != nil {
		s.logger.Error("knowledge search: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleKnowledgeStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"document_count": s.knowledge.Count()})
}

// --- helpers ---

func (s *Server) respondStorageError(c *gin.Context, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	s.logger.Error("request failed: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
