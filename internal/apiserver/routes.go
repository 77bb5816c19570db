package apiserver

import "github.com/gin-gonic/gin"

func setupRoutes(r *gin.Engine, deps Deps) {
	api := r.Group("/api")
	{
		api.GET("/health", handleHealth)

		queues := api.Group("/queues")
		{
			queues.GET("/:name/stats", handleQueueStats(deps.Queue))
		}

		jobs := api.Group("/jobs")
		{
			jobs.GET("/:id", handleGetJob(deps.Queue))
		}

		digests := api.Group("/digests")
		digests.Use(Auth0Middleware())
		{
			digests.POST("/users/:userId/trigger", handleTriggerDigest(deps.Queue))
			digests.GET("/:id", handleGetDigest(deps.Store))
		}
	}
}

func handleHealth(c *gin.Context) {
	c.JSON(200, gin.H{"status": "healthy", "service": "sifter"})
}
