// Package api exposes the read/dashboard surface and the workflow mutation
// endpoints over HTTP. Ingestion and classification never go through this
// layer; they run as batch commands.
package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/brandpulse/brandpulse/internal/cache"
	"github.com/brandpulse/brandpulse/internal/db"
	"github.com/brandpulse/brandpulse/internal/workflow"
	"github.com/brandpulse/brandpulse/pkg/logging"
)

// Router sets up API routes
type Router struct {
	db       *db.DB
	cache    *cache.Cache
	repo     *db.Repository
	workflow *workflow.Service
	logger   *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(database *db.DB, redisCache *cache.Cache) *Router {
	repo := db.NewRepository(database.DB)
	return &Router{
		db:       database,
		cache:    redisCache,
		repo:     repo,
		workflow: workflow.NewService(db.NewClassifiedPostRepository(repo)),
		logger:   logging.GetLogger().With(zap.String("component", "api-router")),
	}
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)

	v1 := engine.Group("/api/v1")
	{
		v1.GET("/posts", r.listPosts)
		v1.GET("/posts/actionable", r.listActionable)
		v1.GET("/posts/:id", r.getPost)

		v1.POST("/posts/:id/slack", r.raiseOnSlack)
		v1.POST("/posts/:id/ticket", r.createTicket)
		v1.POST("/posts/:id/assign", r.assign)
		v1.POST("/posts/:id/resolve", r.resolve)
		v1.POST("/posts/:id/notes", r.addNote)

		v1.GET("/stats/classification", r.classificationStats)
		v1.GET("/stats/dashboard", r.dashboardStats)
	}
}

// healthHandler handles health check requests
func (r *Router) healthHandler(c *gin.Context) {
	if err := r.db.Health(c.Request.Context()); err != nil {
		c.JSON(503, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(200, gin.H{
		"status":  "OK",
		"service": "brandpulse-api",
	})
}
