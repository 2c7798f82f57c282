package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/tavus-echo/backend/internal/config"
	"github.com/zhouzirui/tavus-echo/backend/internal/handler"
	"github.com/zhouzirui/tavus-echo/backend/internal/logging"
	"github.com/zhouzirui/tavus-echo/backend/internal/service/script"
	"github.com/zhouzirui/tavus-echo/backend/internal/service/session"
	"github.com/zhouzirui/tavus-echo/backend/internal/service/tavus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if err := logging.Setup(cfg.Log, os.Stderr); err != nil {
		log.Fatal().Err(err).Msg("failed to configure logging")
	}
	if envErr != nil {
		log.Warn().Err(envErr).Msg("failed to load .env file, continuing with system environment variables only")
	}

	if err := cfg.Tavus.Validate(); err != nil {
		log.Fatal().Err(err).Msg("tavus credentials are required")
	}

	profile := tavus.ProfileFromConfig(cfg.Tavus, cfg.Echo.Text)
	client := tavus.NewClientFromConfig(cfg.Tavus, profile)

	var transport session.Transport
	switch cfg.Echo.Transport {
	case config.TransportDataChannel:
		transport = session.NewDataChannelTransport()
	default:
		transport = session.NewRESTTransport(client)
	}

	sessions := session.NewService(client, transport, cfg.Echo.Text)
	store := session.NewStore()
	go sessions.RunSweeper(ctx, store, cfg.Echo.PageIdle, sweepInterval(cfg.Echo.PageIdle))

	// Initialize line suggester
	var scriptSvc *script.Service
	if cfg.AI.Enabled() {
		scriptSvc, err = script.NewService(ctx, cfg.AI, profile)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize line suggester, continuing without it")
			scriptSvc = nil
		} else {
			log.Info().Str("model", cfg.AI.Model).Msg("line suggester initialized")
		}
	} else {
		log.Info().Msg("Ark credentials not configured, line suggester disabled")
	}

	router := handler.NewRouter(sessions, store, scriptSvc, handler.Options{DailyJS: cfg.Echo.DailyJS})

	startServer(ctx, cfg.Server, transport.Name(), router)
}

// sweepInterval checks at least once a minute, and more often for short idle timeouts.
func sweepInterval(idle time.Duration) time.Duration {
	if idle < time.Minute {
		return idle
	}
	return time.Minute
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, transport string, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Str("transport", transport).Msg("tavus echo listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
