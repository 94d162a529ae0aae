package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SubtitleTrack is a caption file offered alongside the video.
type SubtitleTrack struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// SessionView is the externally visible state of a watch session at a point in time.
type SessionView struct {
	ID             uuid.UUID       `json:"id"`
	VideoURL       string          `json:"video_url"`
	SubtitleTracks []SubtitleTrack `json:"subtitle_tracks"`
	CurrentTimeMs  uint64          `json:"current_time_ms"`
	IsPlaying      bool            `json:"is_playing"`
	CreatedAt      time.Time       `json:"created_at"`
}

// CreateSessionRequest represents a request to create a new watch session.
type CreateSessionRequest struct {
	VideoURL       string          `json:"video_url"`
	SubtitleTracks []SubtitleTrack `json:"subtitle_tracks"`
}

// Validate validates the create session request.
func (r *CreateSessionRequest) Validate() error {
	if r.VideoURL == "" {
		return ErrVideoURLRequired
	}
	return nil
}

// EventRecord is one relayed event as stored in the journal.
type EventRecord struct {
	ID           int64           `json:"id"`
	SessionID    uuid.UUID       `json:"session_id"`
	ConnectionID uint64          `json:"connection_id"`
	Op           Op              `json:"op"`
	User         string          `json:"user,omitempty"`
	Envelope     json.RawMessage `json:"envelope"`
	CreatedAt    time.Time       `json:"created_at"`
}
