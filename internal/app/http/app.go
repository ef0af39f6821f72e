package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/14kear/live-voting/internal/handlers"
	"github.com/14kear/live-voting/internal/middleware"
	"github.com/14kear/live-voting/internal/routes"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type App struct {
	log    *slog.Logger
	engine *gin.Engine
	server *http.Server
	port   int
}

type Handlers struct {
	Voting *handlers.VotingHandler
	Auth   *handlers.AuthHandler
	Live   *handlers.LiveHandler
}

// NewApp builds the gin engine and the routes: /api/auth/*, /api/voting/*,
// /ws for the live channel, /metrics and /ping.
func NewApp(
	log *slog.Logger,
	port int,
	allowedOrigins []string,
	h Handlers,
	authMiddleware *middleware.AuthMiddleware,
	gatherer prometheus.Gatherer,
) *App {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	if len(allowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     allowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			AllowCredentials: true,
			AllowWebSockets:  true,
			MaxAge:           12 * time.Hour,
		}))
	}

	api := r.Group("/api")
	{
		routes.RegisterAuthRoutes(api.Group("/auth"), h.Auth)

		publicVotingGroup := api.Group("/voting")
		routes.RegisterPublicRoutes(publicVotingGroup, h.Voting)

		privateVotingGroup := api.Group("/voting", authMiddleware.Required())
		routes.RegisterPrivateRoutes(privateVotingGroup, h.Voting, h.Auth)
	}

	r.GET("/ws", authMiddleware.Optional(), h.Live.ServeWS)

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		log:    log,
		engine: r,
		server: httpServer,
		port:   port,
	}
}

// Run blocks serving HTTP until Stop is called.
func (a *App) Run() error {
	a.log.Info("HTTP server is running", slog.String("addr", a.server.Addr))
	return a.server.ListenAndServe()
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("HTTP server is stopping")
	return a.server.Shutdown(ctx)
}

func (a *App) Engine() *gin.Engine {
	return a.engine
}
