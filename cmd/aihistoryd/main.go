// Command aihistoryd is the desktop backend daemon: it opens the store,
// wires the ingestion pipeline, cache worker, command dispatcher, and
// bridge server together, and runs until asked to stop. Grounded on
// cmd/ai-bridge/main.go's construct-then-Run shape and qzbxw-EGO's
// cmd/api/main.go signal.NotifyContext/Server.Shutdown graceful-shutdown
// pattern.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ai-history/core/internal/backup"
	"github.com/ai-history/core/internal/bridge"
	"github.com/ai-history/core/internal/cache"
	"github.com/ai-history/core/internal/command"
	"github.com/ai-history/core/internal/config"
	"github.com/ai-history/core/internal/ingest"
	"github.com/ai-history/core/internal/store"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", "main").Logger()

	paths, err := config.ResolvePaths()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve data paths")
	}
	if err := os.MkdirAll(paths.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create data directory")
	}

	s, err := store.Open(paths.DBPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer s.Close()

	worker := cache.New(s, paths, log)
	s.SetCacheScheduler(func(conversationID string) { worker.Schedule(conversationID) })

	pipeline := ingest.New(s, func(conversationID string) { worker.Schedule(conversationID) }, log)
	exporter := backup.New(s, paths, log)

	bridgeServer := bridge.New(config.BridgeAddr(), config.SessionTTL(), pipeline, log)
	dispatcher := command.New(s, pipeline, worker, exporter, bridgeServer.Sessions(), nil, log)
	_ = dispatcher // wired for the desktop shell's command transport; no in-process caller in this binary.

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- bridgeServer.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		if err := <-errCh; err != nil {
			log.Error().Err(err).Msg("error during bridge shutdown")
		}
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("bridge server exited")
		}
	}
	log.Info().Msg("exiting")
}
