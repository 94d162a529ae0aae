package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/watch-party/relay/internal/model"
	"github.com/watch-party/relay/internal/session"
	"github.com/watch-party/relay/internal/ws"
)

// DefaultColour is used when a viewer subscribes without picking one.
const DefaultColour = "#ffffff"

// WebSocketHandler handles viewer WebSocket subscriptions.
type WebSocketHandler struct {
	sessionManager *session.Manager
	wsHandler      *ws.Handler
	logger         zerolog.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(sessionManager *session.Manager, wsHandler *ws.Handler, logger zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		sessionManager: sessionManager,
		wsHandler:      wsHandler,
		logger:         logger.With().Str("component", "api").Logger(),
	}
}

// Subscribe handles WS /sess/:id/subscribe?nickname=&colour= and blocks
// until the viewer disconnects.
func (h *WebSocketHandler) Subscribe(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	nickname := c.Query("nickname")
	if nickname == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", model.ErrNicknameRequired.Error())
		return
	}

	colour := c.Query("colour")
	if colour == "" {
		colour = DefaultColour
	}

	if _, err := h.sessionManager.Get(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID.String()+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get session: "+err.Error())
		return
	}

	viewer := ws.Viewer{Nickname: nickname, Colour: colour}
	if err := h.wsHandler.HandleConnection(c.Writer, c.Request, sessionID, viewer); err != nil {
		// The upgrader has already written the HTTP error
		h.logger.Debug().Err(err).Str("session", sessionID.String()).Msg("upgrade failed")
	}
}

// RegisterRoutes registers the WebSocket handler routes on a Gin router group.
func (h *WebSocketHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/sess/:id/subscribe", h.Subscribe)
}
