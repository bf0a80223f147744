package api

import (
	authUsecase "daybrief-backend/internal/auth/usecase"
	integrationUsecase "daybrief-backend/internal/integration/usecase"
	"daybrief-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	authUsecase        authUsecase.AuthUsecase
	integrationUsecase integrationUsecase.IntegrationUsecase
	oauthUsecase       integrationUsecase.OAuthUsecase
	config             *config.Config
}

func NewHandler(
	authUc authUsecase.AuthUsecase,
	integrationUc integrationUsecase.IntegrationUsecase,
	oauthUc integrationUsecase.OAuthUsecase,
	cfg *config.Config,
) *Handler {
	return &Handler{
		authUsecase:        authUc,
		integrationUsecase: integrationUc,
		oauthUsecase:       oauthUc,
		config:             cfg,
	}
}

func (h *Handler) Start(addr string) error {
	r := h.Engine()
	return r.Run(addr)
}

// Engine builds the configured gin engine. Split out from Start so tests can
// drive the router without binding a port.
func (h *Handler) Engine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.authUsecase, h.integrationUsecase, h.oauthUsecase)
	return r
}
