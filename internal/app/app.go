package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"chatsync/internal/auth"
	"chatsync/internal/block"
	"chatsync/internal/config"
	"chatsync/internal/docstore"
	"chatsync/internal/docstore/sqlite"
	"chatsync/internal/send"
	"chatsync/internal/subscribe"
	"chatsync/internal/transport/http"
	"chatsync/internal/upload"
	"chatsync/internal/upload/s3"
)

// App wires together the sync core and its transport shell.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           docstore.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      24 * time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	uploader, err := newUploader(cfg, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init uploader: %w", err)
	}

	registry := block.New(st, logger)
	pipeline := send.New(st, registry, uploader, logger)
	subscriber := subscribe.New(st, logger)

	server := http.NewServer(st, pipeline, registry, subscriber, authService, *cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}, nil
}

func newUploader(cfg *config.Config, logger *zerolog.Logger) (upload.Uploader, error) {
	if cfg.S3.Endpoint == "" {
		logger.Warn().Msg("no s3 endpoint configured; attachment uploads disabled")
		return upload.Disabled{}, nil
	}
	return s3.NewClient(s3.Config{
		Endpoint:      cfg.S3.Endpoint,
		AccessKey:     cfg.S3.AccessKey,
		SecretKey:     cfg.S3.SecretKey,
		Bucket:        cfg.S3.Bucket,
		PublicBaseURL: cfg.S3.PublicBaseURL,
		UseSSL:        cfg.S3.UseSSL,
	}, logger)
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
