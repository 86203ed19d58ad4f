package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"cs2kz-api/internal/auth"
)

const (
	serverKey  = "kz.server"
	sessionKey = "kz.session"
)

// Authenticator builds the authentication middlewares for both kinds of
// principal.
type Authenticator struct {
	DB      *gorm.DB
	Codec   *auth.Codec
	Cookies auth.CookieOptions
	Logger  *slog.Logger
}

// CurrentServer returns the game server attached by Server.
func CurrentServer(c *gin.Context) (auth.AuthenticatedServer, bool) {
	v, ok := c.Get(serverKey)
	if !ok {
		return auth.AuthenticatedServer{}, false
	}
	server, ok := v.(auth.AuthenticatedServer)
	return server, ok
}

// CurrentSession returns the operator session attached by Session.
func CurrentSession(c *gin.Context) (auth.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return auth.Session{}, false
	}
	session, ok := v.(auth.Session)
	return session, ok
}

// reject aborts with 401. The reason only goes to the log: every
// authentication and authorization failure looks the same on the wire.
func (a *Authenticator) reject(c *gin.Context, reason string, attrs ...any) {
	a.Logger.InfoContext(c.Request.Context(), "request rejected",
		append([]any{"reason", reason, "path", c.FullPath()}, attrs...)...)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

func (a *Authenticator) internalError(c *gin.Context, err error) {
	a.Logger.ErrorContext(c.Request.Context(), "authentication lookup failed", "error", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func bearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") && parts[1] != "" {
		return parts[1], nil
	}
	return "", errors.New("authorization token required")
}
