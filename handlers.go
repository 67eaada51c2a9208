package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Server holds the collaborators the HTTP handlers use.
type Server struct {
	store         *FileStore
	councilConfig *CouncilConfigStore
	session       *Session
	health        *HealthChecker
	fetcher       *URLFetcher
}

// NewServer creates the HTTP handler set for an app.
func NewServer(app *App) *Server {
	return &Server{
		store:         app.Store,
		councilConfig: app.CouncilConfig,
		session:       app.Session,
		health:        app.Health,
		fetcher:       app.Fetcher,
	}
}

// RegisterRoutes mounts every API route on router.
func (s *Server) RegisterRoutes(router gin.IRouter) {
	router.GET("/", s.healthCheck)

	api := router.Group("/api")
	api.GET("/health", s.doctorHandler)
	api.GET("/config", s.getConfigHandler)
	api.POST("/config", s.updateConfigHandler)
	api.GET("/conversations", s.listConversationsHandler)
	api.POST("/conversations", s.createConversationHandler)
	api.GET("/conversations/:id", s.getConversationHandler)
	api.DELETE("/conversations/:id", s.deleteConversationHandler)
	api.POST("/conversations/:id/message", s.sendMessageHandler)
	api.POST("/conversations/:id/message/stream", s.sendMessageStreamHandler)
	api.POST("/fetch-url", s.fetchURLHandler)
}

// healthCheck returns a simple health check response.
// GET / - Returns service status information.
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "LLM Council API",
	})
}

// doctorHandler reports provider credentials, CLI availability and the
// readiness of every configured model.
// GET /api/health - Query params: ?refresh=true (bypass the report cache)
func (s *Server) doctorHandler(c *gin.Context) {
	report, err := s.health.Check(c.Request.Context(), c.Query("refresh") == "true")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to build health report: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, report)
}

// getConfigHandler returns the current council membership.
// GET /api/config
func (s *Server) getConfigHandler(c *gin.Context) {
	cfg, err := s.councilConfig.Load()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to load council config: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// updateConfigHandler replaces the council membership. The next turn picks it up.
// POST /api/config - Body: {"council_models": [...], "chairman_model": "..."}
func (s *Server) updateConfigHandler(c *gin.Context) {
	var request UpdateConfigRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	if err := s.councilConfig.Save(CouncilConfig{
		CouncilModels: request.CouncilModels,
		ChairmanModel: request.ChairmanModel,
	}); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrInvalidCouncilConfig) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"error": fmt.Sprintf("Failed to save council config: %v", err),
		})
		return
	}

	cfg, err := s.councilConfig.Load()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to load council config: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"council_models": cfg.CouncilModels,
		"chairman_model": cfg.ChairmanModel,
	})
}

// listConversationsHandler lists all conversations with metadata only.
// GET /api/conversations - Returns array of conversation metadata sorted by date.
func (s *Server) listConversationsHandler(c *gin.Context) {
	conversations, err := s.store.ListConversations()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to list conversations: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, conversations)
}

// createConversationHandler creates a new conversation.
// POST /api/conversations - Generates a new UUID and creates an empty conversation.
func (s *Server) createConversationHandler(c *gin.Context) {
	conversationID := uuid.New().String()

	conversation, err := s.store.CreateConversation(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to create conversation: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// getConversationHandler gets a specific conversation by ID.
// GET /api/conversations/:id - Returns full conversation including all messages.
func (s *Server) getConversationHandler(c *gin.Context) {
	conversation, ok := s.lookupConversation(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// deleteConversationHandler removes a conversation.
// DELETE /api/conversations/:id
func (s *Server) deleteConversationHandler(c *gin.Context) {
	conversationID := c.Param("id")

	if err := s.store.DeleteConversation(conversationID); err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Conversation not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to delete conversation: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "deleted",
		"id":     conversationID,
	})
}

// sendMessageHandler sends a message and runs the 3-stage council process.
// POST /api/conversations/:id/message - Runs full council and returns all stages at once.
// Use sendMessageStreamHandler for SSE streaming version.
func (s *Server) sendMessageHandler(c *gin.Context) {
	request, ok := bindMessage(c)
	if !ok {
		return
	}
	if _, ok := s.lookupConversation(c); !ok {
		return
	}

	response, err := s.session.Run(turnContext(c), c.Param("id"), request.Content, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Council process failed: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, response)
}

// sendMessageStreamHandler sends a message and streams the 3-stage council process via SSE.
// POST /api/conversations/:id/message/stream - Streams progress events as each stage completes.
// Events: stage1_start, stage1_complete, stage2_start, stage2_complete, stage3_start,
// stage3_complete, title_complete, then complete or error.
func (s *Server) sendMessageStreamHandler(c *gin.Context) {
	request, ok := bindMessage(c)
	if !ok {
		return
	}
	if _, ok := s.lookupConversation(c); !ok {
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// The error event has already been sent when Run fails.
	_, _ = s.session.Run(turnContext(c), c.Param("id"), request.Content, func(event Event) {
		sendSSEEvent(c, event)
	})
}

// fetchURLHandler fetches and extracts content from a given URL
// POST /api/fetch-url - Body: {"url": "https://..."}
func (s *Server) fetchURLHandler(c *gin.Context) {
	var request struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	content, err := s.fetcher.FetchURLContent(c.Request.Context(), request.URL)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrUnsupportedURL) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"error": fmt.Sprintf("Failed to fetch URL content: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, content)
}

func bindMessage(c *gin.Context) (SendMessageRequest, bool) {
	var request SendMessageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return SendMessageRequest{}, false
	}
	return request, true
}

// lookupConversation writes a 404 or 500 and reports false when the
// conversation in the path cannot be served.
func (s *Server) lookupConversation(c *gin.Context) (*Conversation, bool) {
	conversation, err := s.store.GetConversation(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to get conversation: %v", err),
		})
		return nil, false
	}
	if conversation == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Conversation not found",
		})
		return nil, false
	}
	return conversation, true
}

// turnContext keeps the request's trace but not its cancellation, so a turn
// that the client abandons still finishes and is saved.
func turnContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

// sendSSEEvent sends a Server-Sent Event.
// Marshals data to JSON and writes as SSE format with "data: " prefix.
func sendSSEEvent(c *gin.Context, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "failed to marshal SSE event", "error", err)
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", jsonData)
	c.Writer.Flush()
}
