// Package handlers provides HTTP API request handlers.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/watch-party/relay/internal/model"
	"github.com/watch-party/relay/internal/session"
	"github.com/watch-party/relay/internal/ws"
)

// EventLister reads back the event journal.
type EventLister interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]*model.EventRecord, error)
}

// SessionHandler handles HTTP requests for watch sessions.
type SessionHandler struct {
	sessionManager *session.Manager
	registry       *ws.Registry
	events         EventLister
	logger         zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler. events may be nil when the
// journal is disabled.
func NewSessionHandler(sessionManager *session.Manager, registry *ws.Registry, events EventLister, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessionManager: sessionManager,
		registry:       registry,
		events:         events,
		logger:         logger.With().Str("component", "api").Logger(),
	}
}

// CreateSessionResponse is returned by POST /start_session.
type CreateSessionResponse struct {
	ID uuid.UUID `json:"id"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// parseSessionID reads the :id parameter, writing a 400 when it is not a UUID.
func parseSessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", model.ErrInvalidSessionID.Error())
		return uuid.Nil, false
	}
	return id, true
}

// Create handles POST /start_session - creates a new watch session.
func (h *SessionHandler) Create(c *gin.Context) {
	var req model.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	sess, err := h.sessionManager.Create(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, model.ErrVideoURLRequired) {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create session: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, CreateSessionResponse{ID: sess.ID()})
}

// Get handles GET /sess/:id - reports video and playback state.
func (h *SessionHandler) Get(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	view, err := h.sessionManager.View(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID.String()+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get session: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, view)
}

// Viewers handles GET /sess/:id/viewers - lists connected viewers.
func (h *SessionHandler) Viewers(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	if _, err := h.sessionManager.Get(c.Request.Context(), sessionID); err != nil {
		sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID.String()+" not found")
		return
	}

	c.JSON(http.StatusOK, h.registry.Viewers(sessionID))
}

// Events handles GET /sess/:id/events - returns recently relayed events.
func (h *SessionHandler) Events(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	if h.events == nil {
		sendError(c, http.StatusServiceUnavailable, "JOURNAL_DISABLED", "Event journal is disabled")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer")
			return
		}
		limit = n
	}

	if _, err := h.sessionManager.Get(c.Request.Context(), sessionID); err != nil {
		sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID.String()+" not found")
		return
	}

	records, err := h.events.ListBySession(c.Request.Context(), sessionID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("session", sessionID.String()).Msg("failed to list events")
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list events")
		return
	}

	c.JSON(http.StatusOK, records)
}

// RegisterRoutes registers the session handler routes on a Gin router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/start_session", h.Create)

	sessions := rg.Group("/sess")
	{
		sessions.GET("/:id", h.Get)
		sessions.GET("/:id/viewers", h.Viewers)
		sessions.GET("/:id/events", h.Events)
	}
}
