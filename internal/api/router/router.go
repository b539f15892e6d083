// Package router wires the status API routes and middleware.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/openjdk/jmerge/consts"
	"github.com/openjdk/jmerge/internal/api/handler"
	"github.com/openjdk/jmerge/internal/api/middleware"
	"github.com/openjdk/jmerge/internal/config"
	"github.com/openjdk/jmerge/internal/engine"
	"github.com/openjdk/jmerge/internal/store"
)

// Setup registers middleware and routes on the gin engine.
func Setup(r *gin.Engine, eng *engine.Engine, cfg *config.Config, st store.Store) {
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(&middleware.LoggerConfig{AccessLog: cfg.Server.Debug}))
	r.Use(middleware.ErrorHandler(cfg.Server.Debug))
	if len(cfg.Server.CORSOrigins) > 0 {
		r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	}
	r.Use(otelgin.Middleware(consts.ServiceName))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": consts.Version})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	status := handler.NewStatus(eng, st)
	v1 := r.Group("/api/v1")
	{
		v1.GET("/bots", status.ListBots)
		v1.GET("/queue", status.QueueStats)
		v1.GET("/repositories", status.ListRepositories)
		v1.GET("/repositories/:owner/:name/prs", status.ListPRStates)
		v1.GET("/repositories/:owner/:name/prs/:number", status.GetPRState)
		v1.GET("/issues/:key/prs", status.ListIssuePRs)
	}
}
