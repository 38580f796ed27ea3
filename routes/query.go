package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"book-rag-backend/internal/logger"
	"book-rag-backend/models"
	"book-rag-backend/services"
	"book-rag-backend/utils"
)

// QueryService answers one question end to end.
type QueryService interface {
	Query(ctx context.Context, userID string, req models.QueryRequest) (*models.QueryResponse, error)
}

func SetupQueryRoutes(router *gin.Engine, rag QueryService) {
	router.POST("/query", func(c *gin.Context) {
		var req models.QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "invalid_input", "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		// Anonymous access is allowed; the header only groups sessions.
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			userID = "anonymous"
		}

		resp, err := rag.Query(c.Request.Context(), userID, req)
		if err != nil {
			if errors.Is(err, services.ErrEmptyQuery) {
				utils.RespondWithBadRequest(c, "invalid_input", "Query must not be empty", nil)
				return
			}
			logger.Error("query failed", "user_id", userID, "error", err)
			utils.RespondWithInternalError(c, "query_failed", "Failed to answer the question. Please try again.")
			return
		}

		c.JSON(http.StatusOK, resp)
	})
}
