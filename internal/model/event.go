package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Op names a payload variant on the wire.
type Op string

const (
	OpSetPlaying  Op = "SetPlaying"
	OpSetTime     Op = "SetTime"
	OpUserJoin    Op = "UserJoin"
	OpUserLeave   Op = "UserLeave"
	OpChatMessage Op = "ChatMessage"
)

// Payload is one of SetPlaying, SetTime, UserJoin, UserLeave or ChatMessage.
// The set is sealed; adding a variant means touching the codec and the handler.
type Payload interface {
	Op() Op
	isPayload()
}

// SetPlaying starts or pauses playback at the given position in milliseconds.
type SetPlaying struct {
	Playing bool   `json:"playing"`
	Time    uint64 `json:"time"`
}

// SetTime seeks to a position in milliseconds.
type SetTime uint64

// UserJoin announces a viewer joining; the name travels in the envelope.
type UserJoin struct{}

// UserLeave announces a viewer leaving; the name travels in the envelope.
type UserLeave struct{}

// ChatMessage is a line of chat text.
type ChatMessage string

func (SetPlaying) Op() Op  { return OpSetPlaying }
func (SetTime) Op() Op     { return OpSetTime }
func (UserJoin) Op() Op    { return OpUserJoin }
func (UserLeave) Op() Op   { return OpUserLeave }
func (ChatMessage) Op() Op { return OpChatMessage }

func (SetPlaying) isPayload()  {}
func (SetTime) isPayload()     {}
func (UserJoin) isPayload()    {}
func (UserLeave) isPayload()   {}
func (ChatMessage) isPayload() {}

// Envelope wraps a payload with sender metadata.
//
// User and Colour are nil on frames from clients; the hub fills them in for
// join/leave announcements and chat. Reflected is carried through untouched.
type Envelope struct {
	User      *string
	Colour    *string
	Payload   Payload
	Reflected bool
}

// NewEnvelope returns an envelope attributed to the given viewer.
func NewEnvelope(user, colour string, payload Payload) Envelope {
	return Envelope{
		User:    &user,
		Colour:  &colour,
		Payload: payload,
	}
}

// Attribute returns a copy of e with user and colour replaced.
func (e Envelope) Attribute(user, colour string) Envelope {
	e.User = &user
	e.Colour = &colour
	return e
}

// Op returns the op of the wrapped payload, or "" when there is none.
func (e Envelope) Op() Op {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Op()
}

type wireEnvelope struct {
	User      *string         `json:"user,omitempty"`
	Colour    *string         `json:"colour,omitempty"`
	Op        Op              `json:"op"`
	Data      json.RawMessage `json:"data,omitempty"`
	Reflected bool            `json:"reflected"`
}

// MarshalJSON encodes the envelope in its adjacently tagged wire form.
func (e Envelope) MarshalJSON() ([]byte, error) {
	w := wireEnvelope{
		User:      e.User,
		Colour:    e.Colour,
		Reflected: e.Reflected,
	}

	var (
		data []byte
		err  error
	)
	switch p := e.Payload.(type) {
	case SetPlaying:
		data, err = json.Marshal(p)
	case SetTime:
		data, err = json.Marshal(uint64(p))
	case ChatMessage:
		data, err = json.Marshal(string(p))
	case UserJoin, UserLeave:
	case nil:
		return nil, fmt.Errorf("%w: envelope has no payload", ErrMalformedEnvelope)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownOp, p)
	}
	if err != nil {
		return nil, err
	}

	w.Op = e.Payload.Op()
	w.Data = data
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire form, rejecting unknown ops and misshapen data.
// Keys are matched exactly; "Op" or "DATA" are not the keys "op" and "data".
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	op, err := field[Op](fields, "op")
	if err != nil {
		return fmt.Errorf("%w: op: %v", ErrMalformedEnvelope, err)
	}
	if op == nil {
		return fmt.Errorf("%w: missing op", ErrMalformedEnvelope)
	}

	user, err := field[string](fields, "user")
	if err != nil {
		return fmt.Errorf("%w: user: %v", ErrMalformedEnvelope, err)
	}
	colour, err := field[string](fields, "colour")
	if err != nil {
		return fmt.Errorf("%w: colour: %v", ErrMalformedEnvelope, err)
	}
	reflected, err := field[bool](fields, "reflected")
	if err != nil {
		return fmt.Errorf("%w: reflected: %v", ErrMalformedEnvelope, err)
	}

	payload, err := decodePayload(*op, fields["data"])
	if err != nil {
		return err
	}

	*e = Envelope{
		User:    user,
		Colour:  colour,
		Payload: payload,
	}
	if reflected != nil {
		e.Reflected = *reflected
	}
	return nil
}

// field decodes fields[key] into a T. An absent or null key yields nil.
func field[T any](fields map[string]json.RawMessage, key string) (*T, error) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func decodePayload(op Op, raw json.RawMessage) (Payload, error) {
	null := isNull(raw)

	switch op {
	case OpSetPlaying:
		if null {
			return nil, fmt.Errorf("%w: %s requires data", ErrMalformedPayload, op)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, op, err)
		}
		playing, err := field[bool](fields, "playing")
		if err != nil {
			return nil, fmt.Errorf("%w: %s: playing: %v", ErrMalformedPayload, op, err)
		}
		position, err := field[uint64](fields, "time")
		if err != nil {
			return nil, fmt.Errorf("%w: %s: time: %v", ErrMalformedPayload, op, err)
		}
		if playing == nil || position == nil {
			return nil, fmt.Errorf("%w: %s requires playing and time", ErrMalformedPayload, op)
		}
		return SetPlaying{Playing: *playing, Time: *position}, nil

	case OpSetTime:
		if null {
			return nil, fmt.Errorf("%w: %s requires data", ErrMalformedPayload, op)
		}
		var t uint64
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, op, err)
		}
		return SetTime(t), nil

	case OpChatMessage:
		if null {
			return nil, fmt.Errorf("%w: %s requires data", ErrMalformedPayload, op)
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, op, err)
		}
		return ChatMessage(s), nil

	case OpUserJoin, OpUserLeave:
		if !null {
			return nil, fmt.Errorf("%w: %s takes no data", ErrMalformedPayload, op)
		}
		if op == OpUserJoin {
			return UserJoin{}, nil
		}
		return UserLeave{}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownOp, op)
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// DecodeEnvelope parses one text frame. Every failure wraps one of
// ErrMalformedEnvelope, ErrUnknownOp or ErrMalformedPayload.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		if errors.Is(err, ErrMalformedEnvelope) || errors.Is(err, ErrUnknownOp) || errors.Is(err, ErrMalformedPayload) {
			return Envelope{}, err
		}
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return env, nil
}

// EncodeEnvelope serializes an envelope into a text frame.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}
