// Package api assembles the HTTP router.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/vngrid/caseguard/internal/handlers"
	"github.com/vngrid/caseguard/internal/middleware"
	"github.com/vngrid/caseguard/pkg/response"
)

// RouterConfig carries the collaborators of the HTTP surface.
type RouterConfig struct {
	DB      *gorm.DB
	Access  *handlers.AccessHandler
	GinMode string
}

// NewRouter builds the gin engine with the full middleware stack and routes.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Metrics())

	router.GET("/api/health", healthCheck(cfg.DB))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := router.Group("/api")
	authed.Use(middleware.RemoteUser(cfg.DB))
	{
		authed.GET("/access/check", cfg.Access.CheckAccess)
		authed.GET("/access/objects", cfg.Access.AccessibleObjects)

		authed.POST("/access-requests", cfg.Access.CreateAccessRequest)
		authed.GET("/access-requests", cfg.Access.ListAccessRequests)
		authed.POST("/access-requests/:id/handle", cfg.Access.HandleAccessRequest)

		authed.POST("/grants", cfg.Access.CreateGrant)
	}

	return router
}

func healthCheck(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	}
}
