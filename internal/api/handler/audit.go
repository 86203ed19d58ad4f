package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"cs2kz-api/internal/audit"
)

type auditEntryResponse struct {
	ID        uint64          `json:"id"`
	Event     string          `json:"event"`
	ActorID   uint64          `json:"actor_id"`
	TargetIDs json.RawMessage `json:"target_ids"`
	Extra     json.RawMessage `json:"extra,omitempty"`
	CreatedOn time.Time       `json:"created_on"`
}

// ListAudit handles GET /audit. Entries come newest first.
func ListAudit(db *gorm.DB, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var params struct {
			Event string `form:"event"`
			Limit int    `form:"limit" binding:"min=0,max=1000"`
		}
		if err := c.ShouldBindQuery(&params); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if params.Limit == 0 {
			params.Limit = 100
		}

		entries, err := audit.Entries(c.Request.Context(), db, params.Event, params.Limit)
		if err != nil {
			internalError(c, logger, "could not list audit entries", err)
			return
		}

		out := make([]auditEntryResponse, len(entries))
		for i, e := range entries {
			out[i] = auditEntryResponse{
				ID:        e.ID,
				Event:     e.Event,
				ActorID:   e.ActorID,
				TargetIDs: json.RawMessage(e.TargetIDs),
				CreatedOn: e.CreatedOn,
			}
			if e.Extra != "" {
				out[i].Extra = json.RawMessage(e.Extra)
			}
		}
		c.JSON(http.StatusOK, gin.H{"results": out})
	}
}
