package ws

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/watch-party/relay/internal/buffer"
	"github.com/watch-party/relay/internal/model"
)

// ConnectionID identifies one viewer connection for the life of the process.
type ConnectionID uint64

// NoConnection is never issued; pass it to Broadcast to exclude nobody.
const NoConnection ConnectionID = 0

// Viewer is the identity bound to a connection at handshake time.
type Viewer struct {
	Nickname string `json:"nickname"`
	Colour   string `json:"colour"`
}

// ViewerInfo describes a connected viewer.
type ViewerInfo struct {
	ID ConnectionID `json:"id"`
	Viewer
}

type connection struct {
	id        ConnectionID
	sessionID uuid.UUID
	viewer    Viewer
	outbox    *buffer.Outbox
}

// Registry holds every live connection and delivers envelopes to them.
type Registry struct {
	nextID atomic.Uint64

	mu    sync.RWMutex
	conns map[ConnectionID]*connection

	logger zerolog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		conns:  make(map[ConnectionID]*connection),
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// Register adds a connection to a session and returns its id and outbox.
// The connection receives broadcasts from this point on.
func (r *Registry) Register(sessionID uuid.UUID, viewer Viewer) (ConnectionID, *buffer.Outbox) {
	id := ConnectionID(r.nextID.Add(1))
	c := &connection{
		id:        id,
		sessionID: sessionID,
		viewer:    viewer,
		outbox:    buffer.NewOutbox(),
	}

	r.mu.Lock()
	r.conns[id] = c
	count := len(r.conns)
	r.mu.Unlock()

	r.logger.Info().
		Str("session", sessionID.String()).
		Uint64("connection", uint64(id)).
		Str("nickname", viewer.Nickname).
		Int("connections", count).
		Msg("viewer registered")

	return id, c.outbox
}

// Deregister removes a connection. Envelopes already in its outbox stay
// there; no later broadcast reaches it.
func (r *Registry) Deregister(id ConnectionID) {
	r.mu.Lock()
	c, ok := r.conns[id]
	delete(r.conns, id)
	count := len(r.conns)
	r.mu.Unlock()

	if !ok {
		return
	}

	r.logger.Info().
		Str("session", c.sessionID.String()).
		Uint64("connection", uint64(id)).
		Int("connections", count).
		Msg("viewer deregistered")
}

// Broadcast enqueues env on every connection in the session except exclude
// and returns how many outboxes accepted it. Closed outboxes drop silently.
func (r *Registry) Broadcast(sessionID uuid.UUID, exclude ConnectionID, env model.Envelope) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for id, c := range r.conns {
		if id == exclude || c.sessionID != sessionID {
			continue
		}
		if c.outbox.Push(env) {
			delivered++
		}
	}
	return delivered
}

// Viewers returns the connections in a session ordered by connection id.
func (r *Registry) Viewers(sessionID uuid.UUID) []ViewerInfo {
	r.mu.RLock()
	viewers := make([]ViewerInfo, 0)
	for _, c := range r.conns {
		if c.sessionID == sessionID {
			viewers = append(viewers, ViewerInfo{ID: c.id, Viewer: c.viewer})
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(viewers, func(a, b ViewerInfo) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return viewers
}

// Stats returns the number of sessions with at least one connection and the
// total number of connections.
func (r *Registry) Stats() (sessions, connections int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[uuid.UUID]struct{})
	for _, c := range r.conns {
		seen[c.sessionID] = struct{}{}
	}
	return len(seen), len(r.conns)
}
