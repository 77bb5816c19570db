package apiserver

import (
	"net/http"

	"sifter/internal/queue"

	"github.com/gin-gonic/gin"
)

// handleQueueStats reports waiting/running/delayed/success/failed counts
// for one named queue, for admin dashboards to poll.
func handleQueueStats(q *queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := queue.Name(c.Param("name"))
		stats, err := q.Stats(c.Request.Context(), name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch queue stats"})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// handleGetJob returns one job's current record, without dequeuing it.
func handleGetJob(q *queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		job, err := q.GetJob(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch job"})
			return
		}
		if job == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusOK, job)
	}
}
