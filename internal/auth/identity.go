package auth

import (
	"time"

	"cs2kz-api/internal/model"
)

// AuthenticatedServer identifies the game server making a request.
type AuthenticatedServer struct {
	ID            uint
	PluginVersion uint16
}

// SessionInfo is the payload of a dashboard session credential. The
// permission mask is read from storage when the session is issued.
type SessionInfo struct {
	SessionID   string            `json:"session_id"`
	Permissions model.Permissions `json:"permissions"`
}

// Session is an authenticated dashboard operator.
type Session struct {
	UserID      uint64
	SessionID   string
	Permissions model.Permissions

	// Token is the raw cookie value; it is forwarded, never logged.
	Token     string
	ExpiresAt time.Time
}
