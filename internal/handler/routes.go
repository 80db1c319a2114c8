package handler

import "github.com/gin-gonic/gin"

type Handlers struct {
	Health  *HealthHandler
	Check   *CheckHandler
	Account *AccountHandler
	APIKeys *APIKeyHandler
	Tokens  *CheckTokenHandler
}

// RegisterRoutes mounts the public API. apiKeyAuth guards the account reads,
// sessionAuth the dashboard management routes.
func RegisterRoutes(router gin.IRouter, h Handlers, apiKeyAuth, sessionAuth gin.HandlerFunc) {
	router.GET("/healthz", h.Health.Check)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/check-api-username", h.Check.Check)

		accountRoutes := apiV1.Group("", apiKeyAuth)
		{
			accountRoutes.GET("/saved", h.Account.Saved)
			accountRoutes.GET("/stats", h.Account.Stats)
			accountRoutes.GET("/user", h.Account.User)
		}

		apiKeyRoutes := apiV1.Group("/apikeys", sessionAuth)
		{
			apiKeyRoutes.POST("", h.APIKeys.Create)
			apiKeyRoutes.GET("", h.APIKeys.List)
			apiKeyRoutes.PATCH("/:id", h.APIKeys.Update)
			apiKeyRoutes.DELETE("/:id", h.APIKeys.Revoke)
		}

		tokenRoutes := apiV1.Group("/tokens", sessionAuth)
		{
			tokenRoutes.POST("", h.Tokens.Create)
			tokenRoutes.GET("", h.Tokens.List)
			tokenRoutes.DELETE("/:id", h.Tokens.Delete)
		}
	}
}
