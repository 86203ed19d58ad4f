package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"gorm.io/gorm"

	"cs2kz-api/internal/auth"
	"cs2kz-api/internal/model"
)

// ServerMetadata is decoded from the body of every game server request.
type ServerMetadata struct {
	PluginVersion *uint16 `json:"plugin_version"`
}

// Server authenticates game servers by bearer token. Every step
// short-circuits: decode the token, confirm the server still holds a key,
// check expiry, then read the plugin version from the JSON body. The body
// stays readable for the handler through ShouldBindBodyWith.
func (a *Authenticator) Server() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			a.reject(c, "missing bearer token")
			return
		}

		// Expiry is reported after the server lookup.
		claims, err := a.Codec.Verify(token)
		expired := errors.Is(err, auth.ErrExpiredToken)
		if err != nil && !expired {
			a.reject(c, "invalid token", "error", err)
			return
		}

		serverID, err := strconv.ParseUint(claims.Subject, 10, 32)
		if err != nil {
			a.reject(c, "invalid token subject", "subject", claims.Subject)
			return
		}

		var server model.Server
		err = a.DB.WithContext(c.Request.Context()).
			Select("id", "refresh_key").
			Where("id = ?", serverID).
			Take(&server).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				a.reject(c, "unknown server", "server_id", serverID)
				return
			}
			a.internalError(c, err)
			return
		}
		if server.Revoked() {
			a.reject(c, "revoked server", "server_id", serverID)
			return
		}

		if expired {
			a.reject(c, auth.ErrExpiredToken.Error(), "server_id", serverID, "exp", claims.ExpiresAt.Time)
			return
		}

		var meta ServerMetadata
		if err := c.ShouldBindBodyWith(&meta, binding.JSON); err != nil || meta.PluginVersion == nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "malformed body"})
			return
		}

		c.Set(serverKey, auth.AuthenticatedServer{
			ID:            server.ID,
			PluginVersion: *meta.PluginVersion,
		})
		c.Next()
	}
}
