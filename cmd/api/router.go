package api

import (
	"net/http"

	"daybrief-backend/internal/auth/delivery"
	authUsecase "daybrief-backend/internal/auth/usecase"
	integrationDelivery "daybrief-backend/internal/integration/delivery"
	integrationUsecase "daybrief-backend/internal/integration/usecase"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, authUc authUsecase.AuthUsecase, integrationUc integrationUsecase.IntegrationUsecase, oauthUc integrationUsecase.OAuthUsecase) {
	authHandler := delivery.NewAuthHandler(authUc)
	integrationHandler := integrationDelivery.NewIntegrationHandler(integrationUc, oauthUc)

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/register", authHandler.Register)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", delivery.AuthMiddleware(authUc), authHandler.Me)
		}

		// FCM routes (protected)
		fcm := api.Group("/fcm")
		fcm.Use(delivery.AuthMiddleware(authUc))
		{
			fcm.POST("/register", authHandler.RegisterFCMToken)
			fcm.DELETE("/:token", authHandler.UnregisterFCMToken)
		}

		// Integration routes. The OAuth callback is unauthenticated because
		// the provider redirects the browser straight here; everything else
		// requires a logged-in user. The connect route reads :id as a
		// provider name since gin allows one parameter name per position.
		integrations := api.Group("/integrations")
		integrations.GET("/callback", integrationHandler.Callback)

		protected := integrations.Group("")
		protected.Use(delivery.AuthMiddleware(authUc))
		{
			protected.GET("/available", integrationHandler.AvailableProviders)
			protected.GET("", integrationHandler.List)
			protected.POST("/:id/connect", integrationHandler.Connect)
			protected.GET("/:id", integrationHandler.Get)
			protected.DELETE("/:id", integrationHandler.Disconnect)
			protected.PATCH("/:id", integrationHandler.Update)
			protected.POST("/:id/execute", integrationHandler.Execute)
			protected.GET("/:id/emails", integrationHandler.ListEmails)
			protected.GET("/:id/emails/cached", integrationHandler.ListCachedEmails)
			protected.POST("/:id/sync", integrationHandler.QueueSync)
			protected.GET("/:id/sync/status", integrationHandler.SyncStatus)
			protected.POST("/:id/watch", integrationHandler.Watch)
		}

		// Search routes (protected)
		search := api.Group("/search")
		search.Use(delivery.AuthMiddleware(authUc))
		{
			search.POST("/semantic", integrationHandler.SemanticSearch)
		}
	}
}
