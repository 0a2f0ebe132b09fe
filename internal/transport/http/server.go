package http

import (
	"fmt"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vmarkelov/talkwire-server/internal/auth"
	"github.com/vmarkelov/talkwire-server/internal/config"
	"github.com/vmarkelov/talkwire-server/internal/core"
	"github.com/vmarkelov/talkwire-server/internal/store"
	"github.com/vmarkelov/talkwire-server/internal/upload"
)

// NewServer builds the HTTP server: REST API, attachment static files,
// and the WebSocket attach point.
func NewServer(
	authService *auth.Service,
	st store.Store,
	uploads *upload.Store,
	registry *core.Registry,
	router *core.Router,
	cfg *config.Config,
	logger *zerolog.Logger,
) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), LoggerMiddleware(logger))

	engine.GET("/health", healthHandler)
	engine.Static("/uploads", uploads.BaseDir())

	authHandlers := NewAuthHandlers(authService, uploads, logger)
	userHandlers := NewUserHandlers(st, logger)
	messageHandlers := NewMessageHandlers(router, st, uploads, logger)
	wsHandler := NewWSHandler(authService, st, registry, router, logger)

	authGroup := engine.Group("/api/auth")
	{
		authGroup.POST("/register", authHandlers.Register)
		authGroup.POST("/verify-otp", authHandlers.VerifyOTP)
		authGroup.POST("/login", authHandlers.Login)
		authGroup.POST("/forgot-password", authHandlers.ForgotPassword)
		authGroup.POST("/reset-password", authHandlers.ResetPassword)
		authGroup.GET("/profile", AuthMiddleware(authService, logger), authHandlers.Profile)
	}

	api := engine.Group("/api", AuthMiddleware(authService, logger))
	{
		api.GET("/users", userHandlers.ListUsers)
		api.POST("/messages", messageHandlers.Send)
		api.POST("/messages/multiple", messageHandlers.SendMultiple)
		api.GET("/messages/:userID/:contactID", messageHandlers.GetConversation)
		api.DELETE("/messages/:id", messageHandlers.Delete)
	}

	engine.GET("/ws", wsHandler.Attach)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	_, _ = fmt.Fprint(c.Writer, "ok")
}
