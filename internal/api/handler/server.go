package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"cs2kz-api/internal/api/middleware"
	"cs2kz-api/internal/audit"
	"cs2kz-api/internal/model"
)

func errInconsistent(rows int64) error {
	return fmt.Errorf("primary key update touched %d rows", rows)
}

// GetServer handles GET /servers/:id.
func GetServer(db *gorm.DB, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}

		var server model.Server
		if err := db.WithContext(c.Request.Context()).First(&server, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
				return
			}
			internalError(c, logger, "server lookup failed", err)
			return
		}
		c.JSON(http.StatusOK, server)
	}
}

// CreateServer handles POST /servers: it approves a server and hands out
// its refresh key. The key is only ever shown here and on rotation.
func CreateServer(db *gorm.DB, sink *audit.Sink, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Name    string `json:"name" binding:"required"`
			Host    string `json:"host" binding:"required"`
			Port    int    `json:"port" binding:"required,min=1,max=65535"`
			OwnerID uint64 `json:"owner_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		session, _ := middleware.CurrentSession(c)
		ctx := c.Request.Context()
		key := uuid.NewString()
		server := model.Server{
			Name:       input.Name,
			Host:       input.Host,
			Port:       input.Port,
			OwnerID:    input.OwnerID,
			RefreshKey: &key,
			CreatedOn:  sink.Now(),
		}

		var event audit.Event
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var owners int64
			if err := tx.Model(&model.Player{}).Where("id = ?", input.OwnerID).Count(&owners).Error; err != nil {
				return err
			}
			if owners == 0 {
				return gorm.ErrRecordNotFound
			}

			if err := tx.Create(&server).Error; err != nil {
				return err
			}

			var err error
			event, err = sink.Record(tx, audit.Event{
				Name:      "server.created",
				ActorID:   session.UserID,
				TargetIDs: []uint64{uint64(server.ID)},
				Extra:     map[string]any{"owner_id": input.OwnerID, "name": input.Name},
			})
			return err
		})
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "owner not found"})
				return
			}
			internalError(c, logger, "could not create server", err)
			return
		}

		sink.Publish(ctx, event)
		c.JSON(http.StatusCreated, gin.H{"server_id": server.ID, "refresh_key": key})
	}
}

// RotateServerKey handles PUT /servers/:id/key. Tokens already issued stay
// valid until they expire.
func RotateServerKey(db *gorm.DB, sink *audit.Sink, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := uuid.NewString()
		if updateServerKey(c, db, sink, logger, "server.key_rotated", &key) {
			c.JSON(http.StatusCreated, gin.H{"refresh_key": key})
		}
	}
}

// RevokeServerKey handles DELETE /servers/:id/key. The server fails
// authentication on its next request.
func RevokeServerKey(db *gorm.DB, sink *audit.Sink, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if updateServerKey(c, db, sink, logger, "server.key_revoked", nil) {
			c.Status(http.StatusNoContent)
		}
	}
}

func updateServerKey(c *gin.Context, db *gorm.DB, sink *audit.Sink, logger *slog.Logger, event string, key *string) bool {
	id, ok := parseID(c, "id")
	if !ok {
		return false
	}

	session, _ := middleware.CurrentSession(c)
	ctx := c.Request.Context()

	var recorded audit.Event
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Server{}).Where("id = ?", id).Update("refresh_key", key)
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

		var err error
		recorded, err = sink.Record(tx, audit.Event{
			Name:      event,
			ActorID:   session.UserID,
			TargetIDs: []uint64{id},
		})
		return err
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
			return false
		}
		internalError(c, logger, "could not update server key", err)
		return false
	}

	sink.Publish(ctx, recorded)
	return true
}

// Heartbeat handles POST /servers/heartbeat for authenticated game servers.
func Heartbeat(db *gorm.DB, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		server, ok := middleware.CurrentServer(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		err := db.WithContext(c.Request.Context()).
			Model(&model.Server{}).
			Where("id = ?", server.ID).
			Updates(map[string]any{
				"plugin_version": server.PluginVersion,
				"last_seen_on":   db.NowFunc(),
			}).Error
		if err != nil {
			internalError(c, logger, "could not record heartbeat", err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}
