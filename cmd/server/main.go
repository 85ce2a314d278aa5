package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lyallcooper/dupdeleter/internal/app"
)

var (
	version = "dev"
	commit  = ""
)

func main() {
	server, err := app.CreateServer(app.ServerConfig{Version: version, Commit: commit})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start")
	}
	defer server.Cleanup()

	stopCleanup, cleanupDone := server.StartCleanupLoop()

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.HTTP.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("shutdown error")
		}
	}()

	log.Info().Str("addr", server.HTTP.Addr).Msg("server listening")
	if err := server.HTTP.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server error")
	}

	stopCleanup()
	<-cleanupDone
	log.Info().Msg("server stopped")
}
