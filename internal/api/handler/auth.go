package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"cs2kz-api/internal/api/middleware"
	"cs2kz-api/internal/auth"
	"cs2kz-api/internal/model"
)

// SessionIssuer creates dashboard sessions.
type SessionIssuer struct {
	DB      *gorm.DB
	Codec   *auth.Codec
	Cookies auth.CookieOptions
	TTL     time.Duration
	Logger  *slog.Logger
}

// Login handles POST /auth/login. The permission mask baked into the
// session is read from storage now; role changes apply on next login.
func (s *SessionIssuer) Login() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			SteamID  uint64 `json:"steam_id" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		var player model.Player
		if err := s.DB.WithContext(ctx).First(&player, input.SteamID).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				internalError(c, s.Logger, "login lookup failed", err)
				return
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		if !player.CheckPassword(input.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		now := s.Codec.Now().UTC()
		session := model.LoginSession{
			ID:        uuid.NewString(),
			PlayerID:  player.ID,
			CreatedOn: now,
			ExpiresOn: now.Add(s.TTL),
		}

		token, err := s.Codec.Encode(strconv.FormatUint(player.ID, 10), auth.SessionInfo{
			SessionID:   session.ID,
			Permissions: player.Permissions,
		}, s.TTL)
		if err != nil {
			internalError(c, s.Logger, "could not issue session token", err)
			return
		}

		err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&session).Error; err != nil {
				return err
			}
			return tx.Model(&model.Player{}).Where("id = ?", player.ID).Update("last_login_on", now).Error
		})
		if err != nil {
			internalError(c, s.Logger, "could not create session", err)
			return
		}

		s.Logger.InfoContext(ctx, "operator logged in", "user_id", player.ID, "session_id", session.ID)

		auth.SetCookie(c.Writer, token, session.ExpiresOn, s.Cookies)
		c.JSON(http.StatusOK, gin.H{
			"steam_id":    player.ID,
			"permissions": player.Permissions.Names(),
			"expires_on":  session.ExpiresOn,
		})
	}
}

// Logout handles POST /auth/logout. Expiring the session row revokes the
// cookie even if a copy of it is still in flight.
func (s *SessionIssuer) Logout() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := middleware.CurrentSession(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		err := s.DB.WithContext(c.Request.Context()).
			Model(&model.LoginSession{}).
			Where("id = ?", session.SessionID).
			Update("expires_on", s.Codec.Now().UTC()).Error
		if err != nil {
			internalError(c, s.Logger, "could not revoke session", err)
			return
		}

		auth.ClearCookie(c.Writer, s.Cookies)
		c.Status(http.StatusNoContent)
	}
}

// IssueServerToken handles POST /auth/servers/token: a game server trades
// its refresh key for a short-lived access token.
func IssueServerToken(db *gorm.DB, codec *auth.Codec, ttl time.Duration, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			RefreshKey    string  `json:"refresh_key" binding:"required,uuid"`
			PluginVersion *uint16 `json:"plugin_version" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var server model.Server
		err := db.WithContext(c.Request.Context()).
			Where("refresh_key = ?", input.RefreshKey).
			Take(&server).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				logger.InfoContext(c.Request.Context(), "request rejected", "reason", "unknown refresh key")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			internalError(c, logger, "server lookup failed", err)
			return
		}

		token, err := codec.Encode(strconv.FormatUint(uint64(server.ID), 10), nil, ttl)
		if err != nil {
			internalError(c, logger, "could not issue server token", err)
			return
		}

		logger.InfoContext(c.Request.Context(), "issued server token",
			"server_id", server.ID,
			"plugin_version", *input.PluginVersion,
		)

		c.JSON(http.StatusCreated, gin.H{
			"access_token": token,
			"expires_on":   codec.Now().UTC().Add(ttl),
		})
	}
}
