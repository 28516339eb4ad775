package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/virangaj/test-socket-chat-server/internal/server"
)

func main() {
	// Load a local .env when present (dev convenience).
	_ = godotenv.Load()

	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	hub := server.NewHub()
	go hub.Run()

	backend := server.NewBackendClient(cfg.BackendServer, cfg.BackendTimeout)
	dispatcher := server.NewDispatcher(hub, backend)
	handlers := server.NewHandlers(cfg, hub, dispatcher)

	httpServer := server.CreateServer(cfg.Addr(), server.SetupRoutes(handlers))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	case <-ctx.Done():
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	if err := hub.Shutdown(5 * time.Second); err != nil {
		log.Printf("Hub shutdown: %v", err)
	}
}
