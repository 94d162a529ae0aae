package ws

import (
	"context"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/watch-party/relay/internal/buffer"
	"github.com/watch-party/relay/internal/model"
	"github.com/watch-party/relay/internal/session"
)

// Conn is the message stream of one viewer. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// SessionBridge gives the relay access to shared session state.
type SessionBridge interface {
	Resolve(sessionID uuid.UUID) (*session.WatchSession, error)
	Apply(sessionID uuid.UUID, state *session.WatchSession, payload model.Payload)
}

// Journal records relayed envelopes.
type Journal interface {
	Record(ctx context.Context, sessionID uuid.UUID, connectionID uint64, env model.Envelope) error
}

// Handler runs the reader and writer loops for viewer connections.
type Handler struct {
	registry *Registry
	bridge   SessionBridge
	journal  *journalWriter
	logger   zerolog.Logger
}

// NewHandler creates a new Handler. journal may be nil.
func NewHandler(registry *Registry, bridge SessionBridge, journal Journal, logger zerolog.Logger) *Handler {
	logger = logger.With().Str("component", "handler").Logger()

	h := &Handler{
		registry: registry,
		bridge:   bridge,
		logger:   logger,
	}
	if journal != nil {
		h.journal = newJournalWriter(journal, journalBacklog, logger)
	}
	return h
}

// Close flushes pending journal writes and stops the journal writer.
func (h *Handler) Close() {
	if h.journal != nil {
		h.journal.Close()
	}
}

// Serve relays events for one connection and blocks until it ends.
//
// The connection is registered and announced with UserJoin, then frames are
// read until the stream fails. UserLeave is announced before the connection
// is deregistered. Envelopes already queued are flushed before conn is closed.
func (h *Handler) Serve(ctx context.Context, conn Conn, sessionID uuid.UUID, viewer Viewer) {
	id, outbox := h.registry.Register(sessionID, viewer)

	logger := h.logger.With().
		Str("session", sessionID.String()).
		Uint64("connection", uint64(id)).
		Str("nickname", viewer.Nickname).
		Logger()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, conn, outbox, logger)
	}()

	h.publish(sessionID, id, NoConnection, model.NewEnvelope(viewer.Nickname, viewer.Colour, model.UserJoin{}), logger)

	h.readLoop(conn, sessionID, id, viewer, logger)

	h.publish(sessionID, id, NoConnection, model.NewEnvelope(viewer.Nickname, viewer.Colour, model.UserLeave{}), logger)
	h.registry.Deregister(id)
	outbox.Close()

	<-writerDone
}

// readLoop reads frames until the stream fails.
func (h *Handler) readLoop(conn Conn, sessionID uuid.UUID, id ConnectionID, viewer Viewer, logger zerolog.Logger) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn().Err(err).Msg("read error")
			}
			return
		}

		if messageType != websocket.TextMessage {
			logger.Debug().Int("type", messageType).Msg("ignoring non-text frame")
			continue
		}

		h.handleFrame(sessionID, id, viewer, data, logger)
	}
}

func (h *Handler) handleFrame(sessionID uuid.UUID, id ConnectionID, viewer Viewer, data []byte, logger zerolog.Logger) {
	env, err := model.DecodeEnvelope(data)
	if err != nil {
		logger.Debug().Err(err).Msg("discarding frame")
		return
	}

	// Chat is attributed to the bound nickname, echoed back to the sender and
	// has no effect on session state.
	if _, ok := env.Payload.(model.ChatMessage); ok {
		h.publish(sessionID, id, NoConnection, env.Attribute(viewer.Nickname, viewer.Colour), logger)
		return
	}

	state, err := h.bridge.Resolve(sessionID)
	if err != nil {
		logger.Warn().Err(err).Str("op", string(env.Op())).Msg("dropping event")
		return
	}
	h.bridge.Apply(sessionID, state, env.Payload)

	h.publish(sessionID, id, id, env, logger)
}

// publish broadcasts env on behalf of origin and queues it for the journal.
func (h *Handler) publish(sessionID uuid.UUID, origin, exclude ConnectionID, env model.Envelope, logger zerolog.Logger) {
	delivered := h.registry.Broadcast(sessionID, exclude, env)
	logger.Debug().Str("op", string(env.Op())).Int("recipients", delivered).Msg("broadcast")

	if h.journal == nil {
		return
	}
	h.journal.enqueue(journalRecord{sessionID: sessionID, connectionID: uint64(origin), env: env})
}

// writeLoop drains the outbox onto the connection. A failed write is logged
// and the loop moves on to the next envelope.
func (h *Handler) writeLoop(ctx context.Context, conn Conn, outbox *buffer.Outbox, logger zerolog.Logger) {
	defer conn.Close()

	for {
		env, ok := outbox.Pop(ctx)
		if !ok {
			break
		}

		data, err := model.EncodeEnvelope(env)
		if err != nil {
			logger.Error().Err(err).Str("op", string(env.Op())).Msg("failed to encode envelope")
			continue
		}

		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Warn().Err(err).Str("op", string(env.Op())).Msg("send error")
		}
	}

	if outbox.IsClosed() {
		if err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
			logger.Debug().Err(err).Msg("close frame not sent")
		}
	}
}
