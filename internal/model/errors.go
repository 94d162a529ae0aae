package model

import "errors"

var (
	// ErrVideoURLRequired is returned when a session creation request is missing the video URL.
	ErrVideoURLRequired = errors.New("video_url is required")

	// ErrSessionNotFound is returned when a session is not found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidSessionID is returned when a session identifier is not a UUID.
	ErrInvalidSessionID = errors.New("invalid session id")

	// ErrNicknameRequired is returned when a subscriber does not supply a display name.
	ErrNicknameRequired = errors.New("nickname is required")

	// ErrMalformedEnvelope is returned when a frame is not a JSON object with an op.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrUnknownOp is returned when an envelope names a payload variant that does not exist.
	ErrUnknownOp = errors.New("unknown op")

	// ErrMalformedPayload is returned when the data of a known op has the wrong shape.
	ErrMalformedPayload = errors.New("malformed payload")
)
