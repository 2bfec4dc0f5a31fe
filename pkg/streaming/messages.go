package streaming

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message kinds carried in Envelope.Type.
const (
	TypePlayerUpdate = "playerUpdate"
	TypePlayerShoot  = "playerShoot"
	TypeUserJoin     = "user_join"
	TypeUserLeave    = "user_leave"
	TypeChat         = "chat"
	TypeSystem       = "system"
	TypePing         = "ping"
	TypePong         = "pong"
)

var (
	ErrEmptyMessage = errors.New("empty message")
	ErrMissingType  = errors.New("envelope has no type")
	ErrEmptyData    = errors.New("envelope has no data")
)

// Envelope wraps every message exchanged with the relay server, in both directions.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Username  string          `json:"username,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// MarshalEnvelope builds a JSON-encoded Envelope from a message kind and payload.
// A nil payload leaves Data out.
func MarshalEnvelope(kind string, payload any) ([]byte, error) {
	if kind == "" {
		return nil, ErrMissingType
	}
	env := Envelope{Type: kind}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		env.Data = raw
	}
	return Marshal(env)
}

// Marshal encodes a fully populated envelope.
func Marshal(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", env.Type, err)
	}
	return data, nil
}

// DecodeEnvelope parses raw bytes into an Envelope.
func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, ErrEmptyMessage
	}
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return env, nil
}

// DecodeData unmarshals the envelope's data into T.
func DecodeData[T any](env Envelope) (T, error) {
	var out T
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return out, fmt.Errorf("%w: %q", ErrEmptyData, env.Type)
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("decode %s data: %w", env.Type, err)
	}
	return out, nil
}
