package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthProber checks one dependency.
type HealthProber interface {
	Healthy(ctx context.Context) bool
}

// SetupHealthRoutes wires the service banner and the health rollup. The
// rollup always answers 200; the status field carries the verdict: healthy
// when every probe passes, degraded when some pass, unhealthy when none do.
func SetupHealthRoutes(router *gin.Engine, vector, llm, database HealthProber) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "book-rag-backend",
			"status":  "running",
			"endpoints": gin.H{
				"query":   "POST /query",
				"history": "GET /history/:session_id",
				"health":  "GET /health",
			},
		})
	})

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		vectorUp := vector.Healthy(ctx)
		llmUp := llm.Healthy(ctx)
		databaseUp := database.Healthy(ctx)

		passing := 0
		for _, up := range []bool{vectorUp, llmUp, databaseUp} {
			if up {
				passing++
			}
		}

		status := "degraded"
		switch passing {
		case 3:
			status = "healthy"
		case 0:
			status = "unhealthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"status": status,
			"components": gin.H{
				"vector_store": upDown(vectorUp),
				"llm":          upDown(llmUp),
				"database":     upDown(databaseUp),
			},
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
}

func upDown(up bool) string {
	if up {
		return "up"
	}
	return "down"
}
