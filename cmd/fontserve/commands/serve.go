package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fontserve/fontserve/backend"
	"github.com/fontserve/fontserve/backend/memory"
	"github.com/fontserve/fontserve/backend/watchdir"
	"github.com/fontserve/fontserve/config"
	"github.com/fontserve/fontserve/errors"
	"github.com/fontserve/fontserve/fonthandler"
	"github.com/fontserve/fontserve/logging"
	"github.com/fontserve/fontserve/transport"
)

// ServeCmd starts the collaborative editing server.
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the collaborative font-editing server",
	RunE:    runServe,
}

var (
	servePort        int
	serveReadOnly    bool
	serveDummyEditor bool
	serveCacheSize   int
	serveWatchDir    string
	serveConfigFile  string
)

func init() {
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "HTTP port to listen on (0 = use config default)")
	ServeCmd.Flags().BoolVar(&serveReadOnly, "read-only", false, "force read-only mode regardless of config")
	ServeCmd.Flags().BoolVar(&serveDummyEditor, "dummy-editor", false, "report the server as editable to clients even in read-only mode (edits are then accepted and broadcast but not persisted)")
	ServeCmd.Flags().IntVar(&serveCacheSize, "cache-size", 0, "LRU cache capacity in entries (0 = use config default)")
	ServeCmd.Flags().StringVar(&serveWatchDir, "watch-dir", "", "watch this directory for externally-made touch files (adds Watchable)")
	ServeCmd.Flags().StringVar(&serveConfigFile, "config", "", "path to an explicit fontserve.toml, bypassing the default search path")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	port := cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}
	cacheSize := cfg.Cache.MaxEntries
	if serveCacheSize != 0 {
		cacheSize = serveCacheSize
	}

	b, err := buildBackend()
	if err != nil {
		return errors.Wrap(err, "failed to build backend")
	}

	h, err := fonthandler.New(b,
		fonthandler.WithCacheSize(cacheSize),
		fonthandler.WithReadOnly(cfg.Server.ReadOnly || serveReadOnly),
		fonthandler.WithDummyEditor(cfg.Server.DummyEditor || serveDummyEditor),
	)
	if err != nil {
		return errors.Wrap(err, "failed to construct font handler")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start font handler")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(ctx, h))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	logging.Logger.Infow("fontserve starting", "port", port, "backend", b.Info().Name)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return errors.Wrap(err, "server failed")
	case <-sigCh:
		logging.Logger.Info("shutting down gracefully")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Logger.Errorw("http shutdown error", logging.FieldError, err)
	}
	cancel()
	if err := h.Close(); err != nil {
		return errors.Wrap(err, "font handler close failed")
	}
	return nil
}

func loadServeConfig() (*config.Config, error) {
	if serveConfigFile != "" {
		return config.LoadFromFile(serveConfigFile)
	}
	return config.Load()
}

// buildBackend assembles the composed backend this server hosts: it
// always starts from the in-memory store, optionally wrapped with
// watchdir's fsnotify-driven Watchable for demoing external-change
// reconciliation against a directory of touch files.
func buildBackend() (*backend.Backend, error) {
	store := memory.New()

	if serveWatchDir == "" {
		return backend.Compose("memory", store, store, store, store), nil
	}

	watcher, err := watchdir.Wrap(store, serveWatchDir, watchdir.DefaultDebounce)
	if err != nil {
		return nil, err
	}
	return backend.Compose("memory+watchdir", store, store, watcher, store), nil
}

// wsHandler upgrades each incoming request to a websocket and runs its
// transport.Session for the connection's lifetime.
func wsHandler(ctx context.Context, h *fonthandler.Handler) http.HandlerFunc {
	upgrader := transport.NewUpgrader()
	return func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Logger.Warnw("websocket upgrade failed", logging.FieldError, err)
			return
		}
		clientUUID := uuid.NewString()
		session := transport.NewSession(wsConn, clientUUID)
		logging.Logger.Infow("client connected", logging.FieldClientUUID, clientUUID)
		if err := session.Serve(ctx, h); err != nil {
			logging.Logger.Warnw("session ended with error",
				logging.FieldClientUUID, clientUUID, logging.FieldError, err)
		}
	}
}
