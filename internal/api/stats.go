package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/brandpulse/brandpulse/internal/cache"
	"github.com/brandpulse/brandpulse/internal/db"
)

const statsCacheTTL = 60 * time.Second

// classificationStats serves the aggregate breakdown, cached briefly in Redis
// because dashboards poll it. Stats queries never mutate state.
func (r *Router) classificationStats(c *gin.Context) {
	platform := c.Query("platform")
	company := c.Query("company")

	cacheKey := "stats:classification:" + cache.HashKey(platform, company)
	if cached, err := r.cache.Get(cacheKey); err == nil {
		c.Data(http.StatusOK, "application/json", []byte(cached))
		return
	}

	stats, err := db.NewStatsRepository(r.repo).Classification(c.Request.Context(), platform, company)
	if err != nil {
		r.logger.Error("failed to compute classification stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}

	if body, err := json.Marshal(stats); err == nil {
		if err := r.cache.Set(cacheKey, string(body), statsCacheTTL); err != nil && err != cache.ErrCacheDisabled {
			r.logger.Warn("failed to cache stats", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, stats)
}

func (r *Router) dashboardStats(c *gin.Context) {
	company := c.Query("company")

	cacheKey := "stats:dashboard:" + cache.HashKey(company)
	if cached, err := r.cache.Get(cacheKey); err == nil {
		c.Data(http.StatusOK, "application/json", []byte(cached))
		return
	}

	stats, err := db.NewStatsRepository(r.repo).Dashboard(c.Request.Context(), company)
	if err != nil {
		r.logger.Error("failed to compute dashboard stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}

	if body, err := json.Marshal(stats); err == nil {
		if err := r.cache.Set(cacheKey, string(body), statsCacheTTL); err != nil && err != cache.ErrCacheDisabled {
			r.logger.Warn("failed to cache stats", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, stats)
}
