package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/layer-3/sepha/adapters/events"
	"github.com/layer-3/sepha/adapters/tokenizer"
	"github.com/layer-3/sepha/adapters/upstream"
	"github.com/layer-3/sepha/config"
	"github.com/layer-3/sepha/ports"
	"github.com/layer-3/sepha/service"
	transporthttp "github.com/layer-3/sepha/transport/http"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sepha: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	credentialsPath := pflag.StringP("config", "c", config.DefaultCredentialsPath, "path to the plug.dj credentials file")
	pflag.Parse()
	if pflag.NArg() > 0 {
		*credentialsPath = pflag.Arg(0)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	key, err := tokenizer.LoadKey(cfg.PrivateKeyPath)
	if err != nil {
		return fmt.Errorf("loading signing key: %w", err)
	}
	logger.Info("signing key loaded", "path", cfg.PrivateKeyPath, "alg", key.Method.Alg())

	creds, err := config.LoadCredentials(*credentialsPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	plug, err := upstream.Login(ctx, upstream.Config{
		BaseURL:  cfg.UpstreamURL,
		Email:    creds.Email,
		Password: creds.Password,
		Timeout:  cfg.UpstreamTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("plug.dj login: %w", err)
	}

	eventPub, closeEvents, err := newEventPublisher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeEvents()

	authService := service.NewAuthService(
		tokenizer.NewJWTTokenizer(key, cfg.Issuer),
		plug,
		eventPub,
		service.WithLogger(logger),
		service.WithPublicTokenLength(cfg.PublicTokenLength),
	)

	if err := transporthttp.CheckBodyLimit(authService); err != nil {
		return fmt.Errorf("signing key, issuer and SEPHA_PUBLIC_TOKEN_LENGTH: %w", err)
	}

	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := transporthttp.SetupRouter(authService, cfg.BasePath, logger)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           transporthttp.WithCORS(router, cfg.Origins()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.UpstreamTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Addr, "base_path", cfg.BasePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// newEventPublisher publishes audit events to a Redis stream when REDIS_URL
// is set and discards them otherwise
func newEventPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ports.EventPublisher, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info("REDIS_URL not set, audit events are discarded")
		return events.NewNopPublisher(), func() {}, nil
	}

	publisher, redisClient, err := events.NewRedisStreamPublisher(ctx, cfg.RedisURL, watermill.NewSlogLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("redis event stream: %w", err)
	}

	closeFn := func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("closing event publisher", "error", err)
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("closing redis client", "error", err)
		}
	}
	logger.Info("publishing audit events", "topic", cfg.EventsTopic)
	return events.NewWatermillPublisher(publisher, cfg.EventsTopic), closeFn, nil
}
