package middleware

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"cs2kz-api/internal/auth"
	"cs2kz-api/internal/model"
)

// Session authenticates dashboard operators by session cookie and requires
// every bit of required to be held. Pass model.PermissionNone to only
// require a valid session.
func (a *Authenticator) Session(required model.Permissions) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(auth.CookieName)
		if err != nil || token == "" {
			a.reject(c, "missing session cookie")
			return
		}

		claims, err := a.Codec.Verify(token)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				a.reject(c, "session expired", "subject", claims.Subject, "exp", claims.ExpiresAt.Time)
				return
			}
			a.reject(c, "invalid token", "error", err)
			return
		}

		now := a.Codec.Now()

		userID, err := strconv.ParseUint(claims.Subject, 10, 64)
		if err != nil {
			a.reject(c, "invalid session subject", "subject", claims.Subject)
			return
		}
		var info auth.SessionInfo
		if err := claims.Bind(&info); err != nil || info.SessionID == "" {
			a.reject(c, "invalid session payload", "subject", claims.Subject)
			return
		}

		var row model.LoginSession
		err = a.DB.WithContext(c.Request.Context()).
			Where("id = ? AND player_id = ?", info.SessionID, userID).
			Take(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				a.reject(c, "unknown session", "user_id", userID)
				return
			}
			a.internalError(c, err)
			return
		}
		if !row.Live(now) {
			a.reject(c, "session revoked", "user_id", userID, "session_id", info.SessionID)
			return
		}

		if !info.Permissions.Contains(required) {
			a.reject(c, "insufficient permissions",
				"user_id", userID,
				"held", info.Permissions.String(),
				"required", required.String(),
			)
			return
		}

		session := auth.Session{
			UserID:      userID,
			SessionID:   info.SessionID,
			Permissions: info.Permissions,
			Token:       token,
			ExpiresAt:   claims.ExpiresAt.Time,
		}
		c.Set(sessionKey, session)

		a.Logger.InfoContext(c.Request.Context(), "session authenticated",
			"component", "audit",
			"user_id", userID,
			"session_id", info.SessionID,
		)

		auth.SetCookie(c.Writer, token, session.ExpiresAt, a.Cookies)
		c.Next()
	}
}
