package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"marketplace-sync-service/internal/middleware"
)

// Handlers groups every HTTP handler the router mounts
type Handlers struct {
	Health      *HealthHandler
	Connections *ConnectionHandler
	Sync        *SyncHandler
	Webhooks    *WebhookHandler
	Products    *ProductHandler
	Conflicts   *ConflictHandler
}

// RouterOptions configures the shared middleware
type RouterOptions struct {
	AllowedOrigins []string
	Resolver       middleware.TenantResolver
	Logger         *logrus.Entry
}

// NewRouter configures the HTTP router
func NewRouter(h Handlers, opts RouterOptions) *gin.Engine {
	if opts.Resolver == nil {
		opts.Resolver = middleware.HeaderResolver{}
	}

	router := gin.New()
	router.Use(middleware.Recovery(opts.Logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(opts.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(middleware.Tenant(opts.Resolver))

	router.GET("/health", h.Health.Health)
	router.GET("/ready", h.Health.Ready)

	// Webhooks are authenticated by signature, not by tenant headers
	router.POST("/api/v1/webhooks/:marketplace/:connectionId", h.Webhooks.Receive)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequireTenantID())
	{
		connections := v1.Group("/marketplaces/connections")
		{
			connections.GET("", h.Connections.List)
			connections.POST("", h.Connections.Create)
			connections.GET("/:id", h.Connections.Get)
			connections.PATCH("/:id", h.Connections.Update)
			connections.DELETE("/:id", h.Connections.Delete)
			connections.POST("/:id/test", h.Connections.TestConnection)
			connections.PUT("/:id/credentials", h.Connections.UpdateCredentials)
			connections.GET("/:id/sync-config", h.Connections.GetSyncConfig)
			connections.PUT("/:id/sync-config", h.Connections.PutSyncConfig)
			connections.GET("/:id/webhooks", h.Webhooks.ListEvents)
		}

		sync := v1.Group("/sync")
		{
			sync.POST("/ingest", h.Sync.Ingest)
			sync.POST("/run", h.Sync.Run)
			sync.GET("/runs", h.Sync.ListRuns)
			sync.GET("/runs/:id", h.Sync.GetRun)
		}

		v1.POST("/products/:productId/push/:connectionId", h.Products.Push)

		conflicts := v1.Group("/conflicts")
		{
			conflicts.GET("", h.Conflicts.List)
			conflicts.GET("/:id", h.Conflicts.Get)
			conflicts.POST("/:id/resolve", h.Conflicts.Resolve)
			conflicts.POST("/:id/ignore", h.Conflicts.Ignore)
		}
	}

	return router
}
