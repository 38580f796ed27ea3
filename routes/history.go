package routes

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"book-rag-backend/internal/logger"
	"book-rag-backend/models"
	"book-rag-backend/services"
	"book-rag-backend/utils"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// HistoryProvider reads and deletes conversation history.
type HistoryProvider interface {
	GetHistory(ctx context.Context, sessionID string, limit int) (*models.HistoryResponse, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

func SetupHistoryRoutes(router *gin.Engine, history HistoryProvider) {
	router.GET("/history/:session_id", func(c *gin.Context) {
		sessionID := c.Param("session_id")

		limit := defaultHistoryLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 || parsed > maxHistoryLimit {
				utils.RespondWithBadRequest(c, "invalid_limit",
					"limit must be an integer between 1 and 100", gin.H{"limit": raw})
				return
			}
			limit = parsed
		}

		resp, err := history.GetHistory(c.Request.Context(), sessionID, limit)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrInvalidSessionID):
				utils.RespondWithBadRequest(c, "invalid_session_id", "Session ID must be a UUID", nil)
			case errors.Is(err, services.ErrSessionNotFound):
				utils.RespondWithNotFound(c, "Session not found")
			default:
				logger.Error("failed to load history", "session_id", sessionID, "error", err)
				utils.RespondWithInternalError(c, "history_failed", "Failed to load conversation history")
			}
			return
		}

		c.JSON(http.StatusOK, resp)
	})

	router.DELETE("/history/:session_id", func(c *gin.Context) {
		sessionID := c.Param("session_id")

		err := history.DeleteSession(c.Request.Context(), sessionID)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrInvalidSessionID):
				utils.RespondWithBadRequest(c, "invalid_session_id", "Session ID must be a UUID", nil)
			case errors.Is(err, services.ErrSessionNotFound):
				utils.RespondWithNotFound(c, "Session not found")
			default:
				logger.Error("failed to delete session", "session_id", sessionID, "error", err)
				utils.RespondWithInternalError(c, "delete_failed", "Failed to delete the session")
			}
			return
		}

		c.Status(http.StatusNoContent)
	})
}
