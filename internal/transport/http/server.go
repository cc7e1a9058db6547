package http

import (
	"fmt"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chatsync/internal/auth"
	"chatsync/internal/block"
	"chatsync/internal/config"
	"chatsync/internal/docstore"
	"chatsync/internal/send"
	"chatsync/internal/subscribe"
)

// NewServer builds the HTTP server exposing the sync core: auth, conversation
// and block management, the send endpoint, and the live snapshot stream.
func NewServer(
	st docstore.Store,
	pipeline *send.Pipeline,
	registry *block.Registry,
	subscriber *subscribe.Subscriber,
	authService *auth.Service,
	cfg config.Config,
	logger *zerolog.Logger,
) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	apiHandlers := NewAPIHandlers(authService, logger)
	chatHandlers := NewChatHandlers(st, pipeline, logger)
	blockHandlers := NewBlockHandlers(registry, logger)
	userHandlers := NewUserHandlers(st, logger)
	wsHandler := NewWSHandler(st, subscriber, authService, logger)

	limiter := newRateLimiter(cfg.SendRateLimit)
	limiterStop := make(chan struct{})
	limiter.startReset(limiterStop)

	api := router.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)
	api.POST("/guest", apiHandlers.GuestLogin)

	authed := api.Group("", AuthMiddleware(authService, logger))
	authed.GET("/users/search", userHandlers.Search)
	authed.POST("/conversations", chatHandlers.CreateConversation)
	authed.GET("/conversations", chatHandlers.ListSummaries)
	authed.GET("/conversations/:id/messages", chatHandlers.ListMessages)
	authed.POST("/conversations/:id/messages", RateLimitMiddleware(limiter), chatHandlers.SendMessage)
	authed.POST("/conversations/:id/read", chatHandlers.MarkRead)
	authed.GET("/blocks", blockHandlers.List)
	authed.POST("/blocks/:user_id", blockHandlers.Block)
	authed.DELETE("/blocks/:user_id", blockHandlers.Unblock)

	router.GET("/ws", wsHandler.Handle)

	srv := &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	srv.RegisterOnShutdown(func() { close(limiterStop) })
	return srv
}

func healthHandler(c *gin.Context) {
	fmt.Fprint(c.Writer, "ok")
}
