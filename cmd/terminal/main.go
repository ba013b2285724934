package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JKKN-Institutions/JKKNPOS/internal/cart"
	"github.com/JKKN-Institutions/JKKNPOS/internal/checkout"
	"github.com/JKKN-Institutions/JKKNPOS/internal/config"
	"github.com/JKKN-Institutions/JKKNPOS/internal/localdb"
	"github.com/JKKN-Institutions/JKKNPOS/internal/remote"
	"github.com/JKKN-Institutions/JKKNPOS/internal/shell"
	"github.com/JKKN-Institutions/JKKNPOS/internal/syncqueue"
	"github.com/JKKN-Institutions/JKKNPOS/internal/terminalapi"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadTerminal()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Env != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("terminal_id", cfg.TerminalID).Logger()

	rate, err := cfg.Rate()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid tax rate")
	}

	store, err := localdb.Open(cfg.LocalDBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.LocalDBPath).Msg("failed to open local database")
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Sales side ───────────────────────────────────────────────────────────
	session := cart.NewSession(ctx, localdb.NewJSONState[cart.State](store, "cart"), rate)
	rc := remote.New(remote.Config{
		BaseURL: cfg.RemoteURL,
		Token:   cfg.RemoteToken,
		Timeout: time.Duration(cfg.RemoteTimeoutSeconds) * time.Second,
	})
	queue := syncqueue.New(store, syncqueue.Config{MaxAttempts: cfg.SyncMaxAttempts})
	sender := syncqueue.NewRemoteSender(rc)
	co := checkout.New(checkout.Config{
		TerminalID:    cfg.TerminalID,
		OfflinePrefix: cfg.OfflinePrefix,
	}, session, store, queue, rc)

	// ── Offline shell ────────────────────────────────────────────────────────
	sh := shell.New(ctx, shell.Config{
		UpstreamURL:   cfg.UpstreamURL,
		CacheVersion:  cfg.ShellCacheVer,
		Precache:      cfg.PrecacheRoutes(),
		OfflinePath:   cfg.ShellOfflinePath,
		SyncInterval:  time.Duration(cfg.SyncIntervalSeconds) * time.Second,
		ProbeInterval: time.Duration(cfg.ProbeIntervalSeconds) * time.Second,
	}, store, rc, queue, sender)
	if err := sh.Start(ctx); err != nil {
		// The terminal still sells from the local cache without the shell.
		log.Error().Err(err).Msg("shell: start failed")
	}
	go sh.Run(ctx)

	go func() {
		if _, err := co.RefreshCatalog(ctx); err != nil {
			log.Warn().Err(err).Msg("catalog: initial refresh failed, using local cache")
		}
	}()

	r := terminalapi.New(cfg.Env, terminalapi.Deps{
		Session:  session,
		Checkout: co,
		Store:    store,
		Queue:    queue,
		Shell:    sh,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Msgf("terminal listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down terminal…")
	cancel()
	queue.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("terminal exited")
}
