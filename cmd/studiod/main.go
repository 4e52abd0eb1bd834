package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studio/internal/bootstrap"
	"studio/internal/http/handlers"
	httpapi "studio/internal/http/httpapi"
	"studio/internal/infra"
)

const shutdownTimeout = 20 * time.Second

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Build(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start core")
	}

	// Re-attach pollers for jobs submitted before the last shutdown.
	if cfg.APIKey != "" {
		if _, err := rt.Coordinator.ResumeAll(ctx, cfg.APIKey); err != nil {
			logger.Error().Err(err).Msg("resume pending tasks failed")
		}
	} else {
		logger.Warn().Msg("GEN_API_KEY not set, pending tasks resume on the first authorized /v1/tasks/resume call")
	}

	app := &handlers.App{
		Coordinator: rt.Coordinator,
		Records:     rt.Records,
		Files:       rt.Files,
		Events:      rt.Events,
		Logger:      &logger,
		APIKey:      cfg.APIKey,
		Done:        ctx.Done(),
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:         &logger,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		SubmitLimit:    cfg.SubmitRateLimit,
	})
	server := infra.NewHTTPServer(cfg, router)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("control api listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if err := rt.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to stop core")
	}
	logger.Info().Msg("server stopped")
}
