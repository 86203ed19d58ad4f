package model

import "time"

// BanState is the lifecycle position of a ban.
type BanState int

const (
	BanActive BanState = iota
	BanReverted
	BanNaturallyExpired
)

func (s BanState) String() string {
	switch s {
	case BanActive:
		return "active"
	case BanReverted:
		return "reverted"
	case BanNaturallyExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Ban is a punitive record against a player. ExpiresOn == nil means the
// ban is permanent.
type Ban struct {
	ID        uint64     `gorm:"primaryKey" json:"id"`
	PlayerID  uint64     `gorm:"not null;index" json:"player_id"`
	AdminID   uint64     `gorm:"not null;index" json:"admin_id"`
	Reason    string     `gorm:"not null" json:"reason"`
	CreatedOn time.Time  `gorm:"not null;index" json:"created_on"`
	ExpiresOn *time.Time `json:"expires_on"`

	Unban *Unban `gorm:"foreignKey:BanID" json:"unban"`
}

// State derives the lifecycle state. Unban must have been preloaded.
func (b *Ban) State(now time.Time) BanState {
	if b.Unban != nil {
		return BanReverted
	}
	if b.ExpiresOn != nil && !now.Before(*b.ExpiresOn) {
		return BanNaturallyExpired
	}
	return BanActive
}

// Unban reverts a ban. At most one exists per ban.
type Unban struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	BanID     uint64    `gorm:"not null;uniqueIndex" json:"ban_id"`
	AdminID   uint64    `gorm:"not null" json:"admin_id"`
	Reason    string    `gorm:"not null" json:"reason"`
	CreatedOn time.Time `gorm:"not null" json:"created_on"`
}

// AuditEntry is one row of the append-only audit log.
type AuditEntry struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	Event     string    `gorm:"not null;index" json:"event"`
	ActorID   uint64    `gorm:"not null;index" json:"actor_id"`
	TargetIDs string    `gorm:"not null" json:"target_ids"`
	Extra     string    `json:"extra"`
	CreatedOn time.Time `gorm:"not null;index" json:"created_on"`
}
