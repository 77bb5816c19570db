// Package apiserver is the HTTP surface used to drive and observe the
// digest pipeline: a health check, read-only queue/job observability, and
// the one endpoint that kicks off a digest cycle for a user.
package apiserver

import (
	"context"
	"net/http"
	"os"
	"time"

	"sifter/internal/db"
	"sifter/internal/queue"

	"github.com/gin-gonic/gin"
)

// Server wraps the gin HTTP server and the dependencies its routes need.
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	queue      *queue.Queue
}

// Deps bundles everything the routes depend on.
type Deps struct {
	Store db.Store
	Queue *queue.Queue
}

// New builds a Server bound to addr (e.g. ":8080").
func New(addr string, deps Deps) *Server {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	setupRoutes(router, deps)

	return &Server{
		router: router,
		queue:  deps.Queue,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start runs the HTTP server until it errors or is shut down.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
