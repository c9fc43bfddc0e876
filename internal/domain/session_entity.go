package domain

import (
	"fmt"
	"regexp"
	"time"
)

// SessionID is the caller-chosen identifier of a session. It doubles as the
// name of the session's credential directory, so it is restricted to a
// filesystem-safe alphabet.
type SessionID string

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// String returns the string representation of SessionID
func (id SessionID) String() string {
	return string(id)
}

// IsValid checks if the session ID is valid
func (id SessionID) IsValid() bool {
	return sessionIDPattern.MatchString(string(id))
}

// ParseSessionID parses a string into a SessionID
func ParseSessionID(s string) (SessionID, error) {
	if s == "" {
		return "", NewValidationError("session ID cannot be empty")
	}
	id := SessionID(s)
	if !id.IsValid() {
		return "", NewValidationError(fmt.Sprintf("invalid session ID %q: use letters, digits, '.', '_' or '-' (max 64)", s))
	}
	return id, nil
}

// Status represents the session status
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusAwaitingScan Status = "awaiting_scan"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// IsValid checks if the status is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusDisconnected, StatusConnecting, StatusAwaitingScan, StatusConnected, StatusError:
		return true
	default:
		return false
	}
}

// IsActive reports whether a session in this status owns, or is about to
// own, a protocol connection.
func (s Status) IsActive() bool {
	switch s {
	case StatusConnecting, StatusAwaitingScan, StatusConnected:
		return true
	default:
		return false
	}
}

// SessionInfo is a point-in-time snapshot of a session's lifecycle state.
type SessionInfo struct {
	ID               SessionID `json:"id"`
	Status           Status    `json:"status"`
	JID              string    `json:"jid,omitempty"`
	PushName         string    `json:"push_name,omitempty"`
	Platform         string    `json:"platform,omitempty"`
	Retries          int       `json:"retries"`
	MaxRetries       int       `json:"max_retries"`
	ReconnectEnabled bool      `json:"reconnect_enabled"`
	LastError        string    `json:"last_error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	LastStartedAt    time.Time `json:"last_started_at,omitempty"`
	LastActivityAt   time.Time `json:"last_activity_at,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IsConnected checks if the session is connected
func (s SessionInfo) IsConnected() bool {
	return s.Status == StatusConnected
}

// HasError checks if the session has exhausted its retries
func (s SessionInfo) HasError() bool {
	return s.Status == StatusError
}

// ToMap converts session info to map for serialization
func (s SessionInfo) ToMap() map[string]any {
	return map[string]any{
		"id":                s.ID.String(),
		"status":            string(s.Status),
		"jid":               s.JID,
		"push_name":         s.PushName,
		"platform":          s.Platform,
		"retries":           s.Retries,
		"max_retries":       s.MaxRetries,
		"reconnect_enabled": s.ReconnectEnabled,
		"last_error":        s.LastError,
		"created_at":        s.CreatedAt,
		"last_started_at":   s.LastStartedAt,
		"last_activity_at":  s.LastActivityAt,
		"updated_at":        s.UpdatedAt,
	}
}
