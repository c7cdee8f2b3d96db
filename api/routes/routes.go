package routes

import (
	"net/http"

	"github.com/ArowuTest/mtn-vote-reconciler/internal/config"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/handlers"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/middleware"
	"github.com/gin-gonic/gin"
)

// HandlerDependencies holds the handlers the router mounts
type HandlerDependencies struct {
	AuthHandler           *handlers.AuthHandler
	TransactionHandler    *handlers.TransactionHandler
	WebhookHandler        *handlers.WebhookHandler
	ReconciliationHandler *handlers.ReconciliationHandler
}

// SetupRouter sets up the router
func SetupRouter(cfg *config.Config, deps HandlerDependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// Add middleware
	router.Use(middleware.CORSMiddleware(cfg))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware())

	// Public routes
	public := router.Group("/api/v1")
	{
		public.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status": "ok",
			})
		})

		auth := public.Group("/auth")
		{
			auth.POST("/login", deps.AuthHandler.Login)
		}
	}

	// Provider callbacks authenticate by signature or source address
	webhooks := router.Group("/api/v1/webhooks")
	webhooks.Use(middleware.WebhookAuthMiddleware(cfg.Webhook))
	{
		webhooks.POST("/momo", deps.WebhookHandler.HandlePaymentCallback)
	}

	// Protected routes
	protected := router.Group("/api/v1")
	protected.Use(middleware.JWTAuthMiddleware(cfg))
	{
		protected.POST("/transactions", deps.TransactionHandler.CreateTransaction)

		operator := protected.Group("/operator")
		{
			operator.POST("/reconcile", deps.ReconciliationHandler.RunBatch)
			operator.POST("/recover", deps.ReconciliationHandler.Recover)
			operator.GET("/audit", deps.ReconciliationHandler.Audit)
			operator.GET("/transactions/:reference", deps.TransactionHandler.GetTransaction)
		}
	}

	return router
}
