package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	httpapp "github.com/14kear/live-voting/internal/app/http"
	"github.com/14kear/live-voting/internal/config"
	"github.com/14kear/live-voting/internal/event"
	"github.com/14kear/live-voting/internal/handlers"
	"github.com/14kear/live-voting/internal/live"
	"github.com/14kear/live-voting/internal/metrics"
	"github.com/14kear/live-voting/internal/middleware"
	"github.com/14kear/live-voting/internal/repo/memory"
	"github.com/14kear/live-voting/internal/repo/postgres"
	"github.com/14kear/live-voting/internal/services"
	"github.com/14kear/live-voting/internal/services/auth"
	"github.com/14kear/live-voting/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const memoryStorage = "memory://"

type storage interface {
	services.PollStorage
	services.LogStorage
	auth.UserSaver
	auth.UserProvider
	Close() error
}

type App struct {
	HTTPServer *httpapp.App
	Voting     *services.OnlineVoting
	Hub        *live.Hub

	log       *slog.Logger
	storage   storage
	publisher event.Publisher
	stopHub   context.CancelFunc
	hubDone   chan struct{}
}

func NewApp(ctx context.Context, log *slog.Logger, cfg *config.Config) (*App, error) {
	const op = "app.NewApp"

	store, err := newStorage(ctx, log, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	var publisher event.Publisher = event.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = event.NewKafkaPublisher(log, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		log.Info("publishing poll events", slog.String("topic", cfg.Kafka.Topic))
	}

	hub := live.NewHub(log, m)
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		hub.Run(hubCtx)
		close(hubDone)
	}()

	votingService := services.NewOnlineVoting(log, services.NewLedger(store), store, hub, publisher, m)
	authService := auth.NewAuth(log, store, store, cfg.Auth.Secret, cfg.Auth.SessionTTL)

	authMiddleware := middleware.NewAuthMiddleware(authService)
	h := httpapp.Handlers{
		Voting: handlers.NewVotingHandler(votingService),
		Auth:   handlers.NewAuthHandler(authService, cfg.Auth.SessionTTL, cfg.Env != utils.EnvLocal),
		Live: handlers.NewLiveHandler(log, hub, votingService, live.ClientOptions{
			SendBuffer:   cfg.Live.SendBuffer,
			WriteTimeout: cfg.Live.WriteTimeout,
		}, originPatterns(cfg.HTTP.AllowedOrigins)),
	}

	httpApp := httpapp.NewApp(log, cfg.HTTP.Port, cfg.HTTP.AllowedOrigins, h, authMiddleware, registry)

	return &App{
		HTTPServer: httpApp,
		Voting:     votingService,
		Hub:        hub,
		log:        log,
		storage:    store,
		publisher:  publisher,
		stopHub:    stopHub,
		hubDone:    hubDone,
	}, nil
}

// Stop shuts the HTTP server down, closes every live channel and then
// releases the publisher and the store.
func (a *App) Stop(ctx context.Context) error {
	var errs []error

	if err := a.HTTPServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}

	a.stopHub()
	select {
	case <-a.hubDone:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("live hub: %w", ctx.Err()))
	}

	if err := a.publisher.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.storage.Close(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}

	return errors.Join(errs...)
}

func newStorage(ctx context.Context, log *slog.Logger, cfg *config.Config) (storage, error) {
	if strings.HasPrefix(cfg.StoragePath, memoryStorage) {
		log.Warn("using in-memory storage, data is lost on restart")
		return memory.New(), nil
	}

	return postgres.New(ctx, log, cfg.StoragePath, cfg.StorageAttempts)
}

// originPatterns turns configured CORS origins into the host patterns the
// websocket handshake checks against.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimPrefix(origin, "https://")
		origin = strings.TrimPrefix(origin, "http://")
		if origin != "" {
			patterns = append(patterns, origin)
		}
	}
	return patterns
}
