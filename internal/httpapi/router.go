// Package httpapi wires the gin.Engine that fronts the broker: a
// health check, and the WebSocket upgrade endpoint served by
// transport/wsserver. Grounded on the teacher's
// internal/interfaces/http.Router (NewRouter/SetupRoutes/GetEngine/Run
// shape), trimmed to this broker's much smaller surface.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"vssbroker/internal/httpapi/middleware"
	"vssbroker/internal/shared/logger"
	"vssbroker/internal/shared/version"
	"vssbroker/internal/vss/transport/wsserver"
)

// Router configures and serves the broker's HTTP surface.
type Router struct {
	engine *gin.Engine
	server *http.Server
	log    logger.Interface
}

// NewRouter builds a Router bound to ws, the WebSocket transport that
// serves the action protocol.
func NewRouter(ws *wsserver.Server, allowedOrigins []string, mode string, log logger.Interface) *Router {
	gin.SetMode(mode)
	engine := gin.New()
	engine.Use(middleware.Logging())
	engine.Use(middleware.Recovery())
	engine.Use(middleware.CORS(allowedOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "vssbroker",
			"version": version.Current,
		})
	})

	engine.GET("/ws", func(c *gin.Context) {
		ws.HandleUpgrade(c.Writer, c.Request)
	})

	return &Router{engine: engine, log: log}
}

// GetEngine returns the underlying gin.Engine, mainly for tests.
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// Start begins serving addr in the background; it returns immediately.
// Call Shutdown to stop it.
func (r *Router) Start(addr string) {
	r.server = &http.Server{
		Addr:              addr,
		Handler:           r.engine,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		r.log.Infow("http server starting", "address", addr)
		if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.log.Fatalw("http server failed", "error", err)
		}
	}()
}

// Shutdown gracefully stops the server, waiting up to ctx's deadline
// for in-flight HTTP requests to finish. Upgraded WebSocket connections
// are hijacked from the server and are neither closed nor waited for.
func (r *Router) Shutdown(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown(ctx)
}
