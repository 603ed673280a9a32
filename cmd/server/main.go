package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"chat-relay/moderation"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/server"
)

// Exit codes to provide meaningful status to the operating system or
// service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper: call run() and map its
	// outcome to an OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chat-relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting so deferred cleanup always executes.
func run() (int, error) {
	// 1. Configuration & logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	mask := []rune(config.ModerationMask)
	if len(mask) != 1 {
		return exitConfig, fmt.Errorf("MODERATION_MASK must be a single character, got %q", config.ModerationMask)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Core components
	filter, err := moderation.NewFilter(moderation.DefaultWords(), mask[0])
	if err != nil {
		return exitRuntime, fmt.Errorf("building content filter: %w", err)
	}
	registry := runtime.NewRegistry()
	roomRepository := repositories.NewRoomRepository(db, log, time.Now)
	orchestrator := runtime.NewOrchestrator(log, registry, roomRepository, filter, time.Now)

	// 4. Context & signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Supervised background workers: the retention job prunes idle
	// rooms once at startup and then on its fixed period.
	supervisor := workers.NewSupervisor(log, config.RestartInterval)
	supervisor.Add(workers.NewRetentionWorker(roomRepository, log, config.RoomMaxIdle, config.RetentionInterval))
	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		supervisor.Run(ctx)
	}()

	// 6. Websocket server
	handler := server.NewHandler(orchestrator, log,
		config.SocketBufferSize, config.SocketBufferSize, config.SendBufferSize)
	httpServer := server.NewHTTPServer(
		fmt.Sprintf("%s:%d", config.Host, config.Port), handler, log)

	log.Info("room retention scheduled",
		"max_idle", config.RoomMaxIdle, "interval", config.RetentionInterval)

	if err := httpServer.Run(ctx); err != nil {
		return exitRuntime, err
	}

	<-supervisorDone
	log.Info("Shutdown complete")
	return exitOK, nil
}
