package apiserver

import (
	"net/http"

	"sifter/internal/db"
	"sifter/internal/queue"
	"sifter/internal/stage/orchestration"

	"github.com/gin-gonic/gin"
)

// handleTriggerDigest enqueues one digest cycle for a user onto the
// Orchestrator queue and returns immediately; the caller polls GET
// /api/digests/:id or the queue endpoints for progress.
func handleTriggerDigest(q *queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")

		payload := orchestration.Payload{UserID: userID}
		err := q.Enqueue(c.Request.Context(), queue.Orchestrator, "orchestrate-"+userID, "", payload, queue.DefaultMaxAttempts)
		if err != nil && err != queue.ErrDuplicate {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue digest cycle"})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"status": "triggered", "userId": userID})
	}
}

// handleGetDigest returns one digest's current state.
func handleGetDigest(store db.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		digest, err := store.GetDigest(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch digest"})
			return
		}
		if digest == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "digest not found"})
			return
		}
		c.JSON(http.StatusOK, digest)
	}
}
