package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"cs2kz-api/internal/api/middleware"
	"cs2kz-api/internal/audit"
	"cs2kz-api/internal/model"
)

type adminResponse struct {
	SteamID     uint64   `json:"steam_id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// GetAdmin handles GET /admins/:steam_id.
func GetAdmin(db *gorm.DB, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		steamID, ok := parseID(c, "steam_id")
		if !ok {
			return
		}

		var player model.Player
		err := db.WithContext(c.Request.Context()).
			Where("id = ? AND permissions != 0", steamID).
			Take(&player).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "admin not found"})
				return
			}
			internalError(c, logger, "admin lookup failed", err)
			return
		}

		c.JSON(http.StatusOK, adminResponse{
			SteamID:     player.ID,
			Name:        player.Name,
			Permissions: player.Permissions.Names(),
		})
	}
}

// UpdateAdmin handles PUT /admins/:steam_id. The stored mask is replaced
// with the union of the given roles; an empty list revokes everything.
// Removing a permission logs the target out.
func UpdateAdmin(db *gorm.DB, sink *audit.Sink, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		steamID, ok := parseID(c, "steam_id")
		if !ok {
			return
		}

		var input struct {
			Roles []string `json:"roles" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		perms, err := model.ParseRoles(input.Roles)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		session, _ := middleware.CurrentSession(c)
		ctx := c.Request.Context()

		var event audit.Event
		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var target model.Player
			if err := tx.Select("id", "permissions").Where("id = ?", steamID).Take(&target).Error; err != nil {
				return err
			}

			res := tx.Model(&model.Player{}).Where("id = ?", steamID).Update("permissions", perms)
			if res.Error != nil {
				return res.Error
			}
			switch res.RowsAffected {
			case 0:
				return gorm.ErrRecordNotFound
			case 1:
			default:
				return errInconsistent(res.RowsAffected)
			}

			// Session cookies carry the mask they were issued with. Losing
			// any permission ends every live session of the target.
			var revoked int64
			if target.Permissions&^perms != 0 {
				now := sink.Now()
				res := tx.Model(&model.LoginSession{}).
					Where("player_id = ? AND expires_on > ?", steamID, now).
					Update("expires_on", now)
				if res.Error != nil {
					return res.Error
				}
				revoked = res.RowsAffected
			}

			var err error
			event, err = sink.Record(tx, audit.Event{
				Name:      "admin.updated",
				ActorID:   session.UserID,
				TargetIDs: []uint64{steamID},
				Extra: map[string]any{
					"permissions":      perms.Names(),
					"revoked_sessions": revoked,
				},
			})
			return err
		})
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
				return
			}
			internalError(c, logger, "could not update admin", err)
			return
		}

		sink.Publish(ctx, event)
		c.Status(http.StatusNoContent)
	}
}
