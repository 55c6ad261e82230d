// Command forged is the forge server daemon: it owns the engine, the
// HTTP/SSE surface, and debounced persistence to the configured store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"forge/internal/adapter"
	"forge/internal/api"
	"forge/internal/config"
	"forge/internal/engine"
	"forge/internal/store"
)

const snapshotKey = "engine_snapshot"

func main() {
	listen := flag.String("listen", "", "address to listen on (default :8420)")
	dataDir := flag.String("data", "", "data directory (default ./data)")
	configPath := flag.String("config", "forge.yaml", "path to forge.yaml")
	flag.Parse()

	cfg := config.FromEnv()
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if err := config.LoadYAML(cfg, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "forged: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	slog.Info("forged starting",
		slog.String("listen", cfg.Listen),
		slog.String("data", cfg.DataDir),
		slog.String("store", cfg.Store),
		slog.String("parser_mode", cfg.ParserMode))

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		slog.Error("failed to create data directory", slog.String("error", err.Error()))
		os.Exit(1)
	}

	kv, err := openStore(cfg)
	if err != nil {
		slog.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer kv.Close()

	python := buildPythonAdapter(cfg)

	opts := []engine.Option{
		engine.WithDefaultPolicy(cfg.DefaultPolicy),
		engine.WithPersist(func(doc engine.SnapshotDoc) {
			if err := persistSnapshot(doc, kv); err != nil {
				slog.Error("debounced snapshot failed", slog.String("error", err.Error()))
			}
		}, 100*time.Millisecond),
	}

	e, err := restoreOrBootstrap(kv, python, opts...)
	if err != nil {
		slog.Error("failed to restore snapshot", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if cfg.LogStateUpdates {
		go logStateUpdates(e)
	}

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      api.NewRouter(e),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams hold connections open indefinitely
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		slog.Info("shutting down")

		if err := persistSnapshot(e.Snapshot(), kv); err != nil {
			slog.Error("final snapshot failed", slog.String("error", err.Error()))
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown error", slog.String("error", err.Error()))
		}
		close(done)
	}()

	slog.Info("forged listening", slog.String("addr", cfg.Listen))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	<-done
	slog.Info("forged stopped")
}

func openStore(cfg *config.Config) (store.KVStore, error) {
	switch cfg.Store {
	case "sqlite":
		return store.OpenSQLiteStore(filepath.Join(cfg.DataDir, "forge.db"))
	default:
		return store.NewFileStore(cfg.DataDir)
	}
}

func buildPythonAdapter(cfg *config.Config) *adapter.Python {
	var primary adapter.Parser
	if cfg.ParserBin != "" {
		primary = adapter.NewExternalParser(cfg.ParserBin)
	}
	py := adapter.NewPython(primary)
	if cfg.ParserMode != "" {
		py.Mode = adapter.ParserMode(cfg.ParserMode)
	}
	py.Strict = cfg.ParserStrict
	return py
}

// restoreOrBootstrap loads a persisted snapshot from kv if one exists,
// otherwise returns a fresh engine with only the bootstrap main state.
func restoreOrBootstrap(kv store.KVStore, python *adapter.Python, opts ...engine.Option) (*engine.Engine, error) {
	data, ok, err := kv.Get(context.Background(), snapshotKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.Info("no snapshot found, starting fresh")
		return engine.New(python, opts...), nil
	}

	var doc engine.SnapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	slog.Info("restored snapshot", slog.Int("ops", len(doc.Ops)), slog.Int("states", len(doc.States)))
	return engine.LoadSnapshot(doc, python, opts...), nil
}

// persistSnapshot writes doc to kv under snapshotKey. Used both as the
// engine's debounced persist callback and for the final flush on
// shutdown.
func persistSnapshot(doc engine.SnapshotDoc, kv store.KVStore) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return kv.Update(context.Background(), snapshotKey, func([]byte, bool) ([]byte, error) {
		return data, nil
	})
}

func logStateUpdates(e *engine.Engine) {
	events, unsubscribe := e.Events().Subscribe()
	defer unsubscribe()
	for ev := range events {
		if ev.Kind == engine.EventStateUpdate {
			slog.Info("state_update", slog.String("state", ev.State))
		}
	}
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error", "silent":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
