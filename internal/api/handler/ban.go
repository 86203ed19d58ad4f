package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cs2kz-api/internal/api/middleware"
	"cs2kz-api/internal/ban"
	"cs2kz-api/internal/model"
)

// banResponse adds the derived lifecycle state to a stored ban.
type banResponse struct {
	model.Ban
	State string `json:"state"`
}

func newBanResponse(b model.Ban, now time.Time) banResponse {
	return banResponse{Ban: b, State: b.State(now).String()}
}

// ListBans handles GET /bans.
func ListBans(bans *ban.Manager, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var params struct {
			PlayerID      *uint64    `form:"player"`
			AdminID       *uint64    `form:"banned_by"`
			CreatedAfter  *time.Time `form:"created_after" time_format:"2006-01-02T15:04:05Z07:00"`
			CreatedBefore *time.Time `form:"created_before" time_format:"2006-01-02T15:04:05Z07:00"`
			Limit         int        `form:"limit" binding:"min=0,max=1000"`
			Offset        int        `form:"offset" binding:"min=0"`
		}
		if err := c.ShouldBindQuery(&params); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		results, total, err := bans.List(c.Request.Context(), ban.Query{
			PlayerID:      params.PlayerID,
			AdminID:       params.AdminID,
			CreatedAfter:  params.CreatedAfter,
			CreatedBefore: params.CreatedBefore,
			Limit:         params.Limit,
			Offset:        params.Offset,
		})
		if err != nil {
			respondError(c, logger, err)
			return
		}

		now := bans.Now()
		out := make([]banResponse, len(results))
		for i, b := range results {
			out[i] = newBanResponse(b, now)
		}
		c.JSON(http.StatusOK, gin.H{"total": total, "results": out})
	}
}

// GetBan handles GET /bans/:id.
func GetBan(bans *ban.Manager, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}

		b, err := bans.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, newBanResponse(*b, bans.Now()))
	}
}

// CreateBan handles POST /bans.
func CreateBan(bans *ban.Manager, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			PlayerID  uint64     `json:"player_id" binding:"required"`
			Reason    string     `json:"reason" binding:"required"`
			ExpiresOn *time.Time `json:"expires_on"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		session, _ := middleware.CurrentSession(c)
		b, err := bans.Create(c.Request.Context(), session.UserID, ban.NewBan{
			PlayerID:  input.PlayerID,
			Reason:    input.Reason,
			ExpiresOn: input.ExpiresOn,
		})
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"ban_id": b.ID})
	}
}

// PatchBan handles PATCH /bans/:id. It never reverts a ban; that is
// DELETE /bans/:id.
func PatchBan(bans *ban.Manager, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}

		var input struct {
			Reason    *string    `json:"reason" binding:"omitempty,min=1"`
			ExpiresOn *time.Time `json:"expires_on"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		session, _ := middleware.CurrentSession(c)
		err := bans.Patch(c.Request.Context(), session.UserID, id, ban.Update{
			Reason:    input.Reason,
			ExpiresOn: input.ExpiresOn,
		})
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// RevertBan handles DELETE /bans/:id.
func RevertBan(bans *ban.Manager, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			return
		}

		var input struct {
			Reason string `json:"reason" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		session, _ := middleware.CurrentSession(c)
		unbanID, err := bans.Revert(c.Request.Context(), session.UserID, id, input.Reason)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"unban_id": unbanID})
	}
}
