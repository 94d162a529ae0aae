// Command server runs the watch-party relay.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/watch-party/relay/api/handlers"
	"github.com/watch-party/relay/internal/config"
	"github.com/watch-party/relay/internal/db"
	"github.com/watch-party/relay/internal/logging"
	"github.com/watch-party/relay/internal/repository"
	"github.com/watch-party/relay/internal/session"
	"github.com/watch-party/relay/internal/ws"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Relay playback and chat events between viewers of a watch session",
		Long: `Start the watch-party relay.

Viewers create a session with POST /start_session and subscribe to it over
a WebSocket at /sess/:id/subscribe. Play, pause and seek events from one
viewer are relayed to everyone else in the session; chat goes to everyone.

Settings are read from flags, WATCH_* environment variables, .env files and
an optional relay.yaml, in that order of precedence.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "Config file (default ./relay.yaml)")
	flags.String("host", "", "Bind address")
	flags.IntP("port", "p", 8080, "Server port")
	flags.String("db", "./data/relay.db", "SQLite journal path")
	flags.Bool("journal", true, "Record relayed events")
	flags.Duration("journal-retention", 24*time.Hour, "Prune journal entries older than this (0 keeps everything)")
	flags.StringSlice("allowed-origins", []string{"*"}, "Allowed CORS and WebSocket origins")
	flags.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", "json", "Log format (json, console)")

	bindings := map[string]string{
		"server.host":            "host",
		"server.port":            "port",
		"server.allowed_origins": "allowed-origins",
		"db.path":                "db",
		"journal.enabled":        "journal",
		"journal.retention":      "journal-retention",
		"log.level":              "log-level",
		"log.format":             "log-format",
	}
	for key, flag := range bindings {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	return cmd
}

// run serves until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(cfg.Log)
	if logger.GetLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	var journal ws.Journal
	var events handlers.EventLister
	var repo *repository.EventRepository
	if cfg.JournalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}

		database, err := db.InitDB(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.CloseDB()

		repo = repository.NewEventRepository(database)
		journal, events = repo, repo
	}

	sessionManager := session.NewManager(session.Config{}, logger)
	wsService := ws.NewService(sessionManager, journal, logger)
	defer wsService.Close()
	ws.SetCheckOrigin(func(r *http.Request) bool {
		return handlers.OriginAllowed(cfg.AllowedOrigins, r.Header.Get("Origin"))
	})

	router := newRouter(routerDeps{
		sessions:       sessionManager,
		service:        wsService,
		events:         events,
		allowedOrigins: cfg.AllowedOrigins,
		logger:         logger,
	})

	// Cancelling the base context ends every live viewer connection
	baseCtx, cancelConns := context.WithCancel(context.Background())
	defer cancelConns()

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     router,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}

	if repo != nil && cfg.JournalRetention > 0 {
		go pruneJournal(baseCtx, repo, cfg.JournalRetention, logger)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Bool("journal", cfg.JournalEnabled).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	cancelConns()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	waitForViewers(shutdownCtx, wsService.Registry())

	logger.Info().Msg("server stopped")
	return nil
}

// waitForViewers gives hijacked WebSocket connections time to flush their
// leave announcements. http.Server.Shutdown does not track them.
func waitForViewers(ctx context.Context, registry *ws.Registry) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if _, conns := registry.Stats(); conns == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pruneJournal drops journal entries older than retention until ctx ends.
func pruneJournal(ctx context.Context, repo *repository.EventRepository, retention time.Duration, logger zerolog.Logger) {
	interval := retention / 4
	if interval > time.Hour {
		interval = time.Hour
	}
	if interval < time.Minute {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := repo.DeleteBefore(ctx, time.Now().Add(-retention))
			if err != nil {
				logger.Error().Err(err).Msg("failed to prune journal")
				continue
			}
			if deleted > 0 {
				logger.Info().Int64("deleted", deleted).Msg("pruned journal")
			}
		}
	}
}
