// Copyright 2024-2026 Aiku AI

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aiku/mautrix-slack-webhook/pkg/connector"
	"github.com/aiku/mautrix-slack-webhook/pkg/matrix"
	"github.com/aiku/mautrix-slack-webhook/pkg/slackhook"
	"github.com/aiku/mautrix-slack-webhook/pkg/store"
)

const shutdownTimeout = 10 * time.Second

func runBridge(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logPtr, err := cfg.Logging.Compile()
	if err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}
	log := *logPtr
	log.Info().
		Str("version", version).
		Str("commit", Commit).
		Msg("Starting bridge")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := store.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}()

	reg, err := matrix.LoadRegistration(cfg)
	if err != nil {
		return err
	}
	transport, err := matrix.NewTransport(cfg, reg, log)
	if err != nil {
		return err
	}
	if err := transport.Start(ctx); err != nil {
		return err
	}

	bridge, err := connector.NewSlackBridge(cfg, transport, slackhook.NewPoster(nil), db, log)
	if err != nil {
		return err
	}
	if err := bridge.LoadLinks(ctx); err != nil {
		return err
	}

	transport.HandleEvents(ctx, bridge.HandleMatrixEvent)
	defer transport.Stop()
	hook := slackhook.NewHandler(bridge, &slackhook.SlackDownloader{}, cfg.SlackTeamTokens, log)

	servers := []*server{
		{name: "appservice", srv: &http.Server{Addr: cfg.AppService.Listen, Handler: transport.Router()}},
		{name: "slack_hook", srv: &http.Server{Addr: cfg.SlackHook.Listen, Handler: hook.Router()}, tls: cfg.SlackHook.TLS},
	}
	if cfg.Metrics.Enabled {
		r := chi.NewRouter()
		r.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &server{name: "metrics", srv: &http.Server{Addr: cfg.Metrics.Listen, Handler: r}})
	}
	return serve(ctx, log, servers)
}

type server struct {
	name string
	srv  *http.Server
	tls  connector.TLSConfig
}

func (s *server) listen() error {
	if s.tls.Enabled() {
		return s.srv.ListenAndServeTLS(s.tls.CrtFile, s.tls.KeyFile)
	}
	return s.srv.ListenAndServe()
}

// serve runs all servers until ctx is cancelled or one of them fails, then
// shuts every server down.
func serve(ctx context.Context, log zerolog.Logger, servers []*server) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		s.srv.ReadHeaderTimeout = 10 * time.Second
		g.Go(func() error {
			log.Info().Str("server", s.name).Str("addr", s.srv.Addr).Bool("tls", s.tls.Enabled()).Msg("Listening")
			if err := s.listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server: %w", s.name, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, s := range servers {
			if err := s.srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("%s server: %w", s.name, err))
			}
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
