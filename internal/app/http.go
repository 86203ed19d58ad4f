package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cs2kz-api/internal/api/handler"
	"cs2kz-api/internal/api/middleware"
	"cs2kz-api/internal/api/websocket"
	"cs2kz-api/internal/model"
)

// Router wires every route to its handler and required principal.
func (s *State) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(s.Logger.With("component", "http")))
	r.Use(middleware.CORSMiddleware(s.Config.DashboardOrigin))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	sessions := &handler.SessionIssuer{
		DB:      s.DB,
		Codec:   s.Codec,
		Cookies: s.Authn.Cookies,
		TTL:     s.Config.SessionTTL,
		Logger:  s.Logger.With("component", "auth"),
	}

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", sessions.Login())
		authGroup.POST("/logout", s.Authn.Session(model.PermissionNone), sessions.Logout())
		authGroup.POST("/servers/token", handler.IssueServerToken(s.DB, s.Codec, s.Config.ServerTokenTTL, s.Logger))
	}

	bans := r.Group("/bans")
	{
		bans.GET("", handler.ListBans(s.Bans, s.Logger))
		bans.GET("/:id", handler.GetBan(s.Bans, s.Logger))
		bans.POST("", s.Authn.Session(model.PermissionBans), handler.CreateBan(s.Bans, s.Logger))
		bans.PATCH("/:id", s.Authn.Session(model.PermissionBans), handler.PatchBan(s.Bans, s.Logger))
		bans.DELETE("/:id", s.Authn.Session(model.PermissionBans), handler.RevertBan(s.Bans, s.Logger))
	}

	admins := r.Group("/admins")
	{
		admins.GET("/:steam_id", handler.GetAdmin(s.DB, s.Logger))
		admins.PUT("/:steam_id", s.Authn.Session(model.PermissionAdmins), handler.UpdateAdmin(s.DB, s.Sink, s.Logger))
	}

	servers := r.Group("/servers")
	{
		servers.POST("", s.Authn.Session(model.PermissionServers), handler.CreateServer(s.DB, s.Sink, s.Logger))
		servers.POST("/heartbeat", s.Authn.Server(), handler.Heartbeat(s.DB, s.Logger))
		servers.GET("/:id", handler.GetServer(s.DB, s.Logger))
		servers.PUT("/:id/key", s.Authn.Session(model.PermissionServers), handler.RotateServerKey(s.DB, s.Sink, s.Logger))
		servers.DELETE("/:id/key", s.Authn.Session(model.PermissionServers), handler.RevokeServerKey(s.DB, s.Sink, s.Logger))
	}

	r.GET("/audit", s.Authn.Session(model.PermissionAdmins), handler.ListAudit(s.DB, s.Logger))
	r.GET("/ws/audit", s.Authn.Session(model.PermissionAdmins), websocket.AuditFeed(s.Hub, s.Config.DashboardOrigin))

	return r
}
