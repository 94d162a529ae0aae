package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/watch-party/relay/internal/model"
)

// WatchSession is the shared playback state of one session.
type WatchSession struct {
	id             uuid.UUID
	videoURL       string
	subtitleTracks []model.SubtitleTrack
	createdAt      time.Time

	mu         sync.Mutex
	playing    bool
	positionMs uint64
	updatedAt  time.Time
}

// ID returns the session id.
func (s *WatchSession) ID() uuid.UUID {
	return s.id
}

// View returns the session state as of now. While playing, the position is
// advanced by the time elapsed since the last update.
func (s *WatchSession) View(now time.Time) model.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	return model.SessionView{
		ID:             s.id,
		VideoURL:       s.videoURL,
		SubtitleTracks: s.subtitleTracks,
		CurrentTimeMs:  s.positionAt(now),
		IsPlaying:      s.playing,
		CreatedAt:      s.createdAt,
	}
}

func (s *WatchSession) positionAt(now time.Time) uint64 {
	if !s.playing {
		return s.positionMs
	}
	elapsed := now.Sub(s.updatedAt).Milliseconds()
	if elapsed <= 0 {
		return s.positionMs
	}
	return s.positionMs + uint64(elapsed)
}

// apply reports whether payload changed playback state.
func (s *WatchSession) apply(payload model.Payload, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch p := payload.(type) {
	case model.SetPlaying:
		s.playing = p.Playing
		s.positionMs = p.Time
	case model.SetTime:
		s.positionMs = uint64(p)
	default:
		return false
	}
	s.updatedAt = now
	return true
}

// Config holds configuration for the session manager.
type Config struct {
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Manager owns every watch session in memory. It resolves sessions for the
// relay and applies playback events to them.
type Manager struct {
	clock  func() time.Time
	logger zerolog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*WatchSession
}

// NewManager creates a new session manager.
func NewManager(config Config, logger zerolog.Logger) *Manager {
	if config.Clock == nil {
		config.Clock = time.Now
	}

	return &Manager{
		clock:    config.Clock,
		logger:   logger.With().Str("component", "session").Logger(),
		sessions: make(map[uuid.UUID]*WatchSession),
	}
}

// Create creates a new paused session at position zero.
func (m *Manager) Create(ctx context.Context, req *model.CreateSessionRequest) (*WatchSession, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := m.clock()
	tracks := req.SubtitleTracks
	if tracks == nil {
		tracks = []model.SubtitleTrack{}
	}

	s := &WatchSession{
		id:             uuid.New(),
		videoURL:       req.VideoURL,
		subtitleTracks: tracks,
		createdAt:      now,
		updatedAt:      now,
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.Info().Str("session", s.id.String()).Str("video", req.VideoURL).Msg("session created")
	return s, nil
}

// Get retrieves a session by id.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*WatchSession, error) {
	return m.Resolve(id)
}

// View returns the session's state as of now.
func (m *Manager) View(ctx context.Context, id uuid.UUID) (model.SessionView, error) {
	s, err := m.Resolve(id)
	if err != nil {
		return model.SessionView{}, err
	}
	return s.View(m.clock()), nil
}

// Resolve returns the session's state handle or model.ErrSessionNotFound.
func (m *Manager) Resolve(id uuid.UUID) (*WatchSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	return s, nil
}

// Apply updates playback state for SetPlaying and SetTime and ignores other
// payloads. A nil state is looked up by id.
func (m *Manager) Apply(id uuid.UUID, state *WatchSession, payload model.Payload) {
	if state == nil {
		var err error
		if state, err = m.Resolve(id); err != nil {
			m.logger.Warn().Err(err).Str("session", id.String()).Msg("apply to unknown session")
			return
		}
	}

	if state.apply(payload, m.clock()) {
		m.logger.Debug().
			Str("session", id.String()).
			Str("op", string(payload.Op())).
			Msg("playback state updated")
	}
}

// Count returns the number of sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
