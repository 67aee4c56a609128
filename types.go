package credauth

import (
	"io"
	"time"

	internalaudit "github.com/alebarre/credauth/internal/audit"
)

// TokenTypeBearer is the token type reported in AuthResult.
const TokenTypeBearer = "Bearer"

// AuthResult is returned by Login and Refresh.
type AuthResult struct {
	Principal string
	Roles     []string
	// SessionToken is the signed, short-lived bearer token.
	SessionToken string
	TokenType    string
	// ExpiresIn is the session token lifetime in seconds.
	ExpiresIn int64
	// RotationToken is the opaque long-lived token exchanged by Refresh.
	RotationToken     string
	RotationExpiresAt time.Time
}

// RegisterRequest is the input of Register. Email becomes the login handle.
type RegisterRequest struct {
	Email           string `validate:"required,email,max=254"`
	DisplayName     string `validate:"required,min=2,max=100"`
	Phone           string `validate:"omitempty,e164"`
	Password        string `validate:"required,max=128,eqfield=ConfirmPassword"`
	ConfirmPassword string `validate:"required"`
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives AuditEvent values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an AuditSink that discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based AuditSink.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON-encoded event per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink logs each AuditEvent through a slog.Logger.
type SlogSink = internalaudit.SlogSink

// MultiSink forwards each AuditEvent to several sinks.
type MultiSink = internalaudit.MultiSink

// NewChannelSink creates a ChannelSink with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a JSONWriterSink that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
