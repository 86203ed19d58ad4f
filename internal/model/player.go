package model

import (
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Player is a known SteamID. Players with a non-zero permission mask are
// admins and may log into the dashboard.
type Player struct {
	ID          uint64      `gorm:"primaryKey;autoIncrement:false" json:"steam_id"`
	Name        string      `gorm:"not null" json:"name"`
	Permissions Permissions `gorm:"not null;default:0" json:"-"`
	Password    string      `gorm:"column:password_hash" json:"-"`
	CreatedOn   time.Time   `gorm:"not null" json:"created_on"`
	LastLoginOn *time.Time  `json:"last_login_on"`
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword reports whether password matches the stored hash.
func (p *Player) CheckPassword(password string) bool {
	if p.Password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(p.Password), []byte(password)) == nil
}

func (p *Player) BeforeCreate(tx *gorm.DB) (err error) {
	if p.Password != "" {
		p.Password, err = HashPassword(p.Password)
	}
	return
}

// LoginSession backs a dashboard session cookie. Expiring the row revokes
// every cookie that references it.
type LoginSession struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	PlayerID  uint64    `gorm:"not null;index" json:"player_id"`
	CreatedOn time.Time `gorm:"not null" json:"created_on"`
	ExpiresOn time.Time `gorm:"not null;index" json:"expires_on"`
}

// Live reports whether the session has not been expired or revoked at now.
func (s *LoginSession) Live(now time.Time) bool {
	return now.Before(s.ExpiresOn)
}
