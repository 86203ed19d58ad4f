package model

import "time"

// Server is an approved game server. A NULL RefreshKey means the server's
// credentials have been revoked.
type Server struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Name          string     `gorm:"not null" json:"name"`
	Host          string     `gorm:"not null" json:"host"`
	Port          int        `gorm:"not null;default:27015" json:"port"`
	OwnerID       uint64     `gorm:"not null;index" json:"owner_id"`
	RefreshKey    *string    `gorm:"uniqueIndex" json:"-"`
	PluginVersion uint16     `json:"plugin_version"`
	LastSeenOn    *time.Time `json:"last_seen_on"`
	CreatedOn     time.Time  `gorm:"not null" json:"created_on"`
}

// Revoked reports whether the server can no longer obtain or use tokens.
func (s *Server) Revoked() bool {
	return s.RefreshKey == nil
}
