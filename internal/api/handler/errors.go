package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cs2kz-api/internal/ban"
)

// respondError maps domain errors to status codes. Anything unrecognised
// is an infrastructure failure: the client gets an opaque message and the
// details stay in the server log.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	var conflict *ban.ConflictError
	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": "ban has already been reverted", "unban_id": conflict.UnbanID})
	case errors.Is(err, ban.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "ban not found"})
	case errors.Is(err, ban.ErrUnknownPlayer):
		c.JSON(http.StatusNotFound, gin.H{"error": "player not found"})
	case errors.Is(err, ban.ErrInvalidExpiry):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func internalError(c *gin.Context, logger *slog.Logger, msg string, err error) {
	logger.ErrorContext(c.Request.Context(), msg, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func parseID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
