package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"chat-relay/auth"
	"chat-relay/infrastructure/ws"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/search"
	"chat-relay/services"
	"chat-relay/sink"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the server and background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	replacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return err
	}

	// 2. Storage (BadgerDB) & full-text index (Bluge)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	index, err := search.Open(config.BlugeFilepath)
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = index.Close()
	}()

	// 3. Repositories & domain services
	userRepository := repositories.NewUserRepository(db)
	roomRepository := repositories.NewRoomRepository(db)
	messageRepository := repositories.NewMessageRepository(db)

	moderator, err := moderation.NewModerator(forbiddenWords(config.ForbiddenWords), replacement)
	if err != nil {
		return fmt.Errorf("moderation setup failed: %w", err)
	}

	monitor := observability.NewMonitor()
	registry := runtime.NewRegistry()
	router := runtime.NewRouter(log, registry, monitor, config.BufferSize, config.DeliveryTimeout)
	router.AddPermanentSinks(sink.NewSearchSink(index, log))

	messageService := services.NewMessageService(log, messageRepository, userRepository, moderator, monitor)
	roomService := services.NewRoomService(log, roomRepository, userRepository)
	presenceService := services.NewPresenceService(log, userRepository)
	chatService := services.NewChatService(log, messageService, userRepository, router, index)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Supervised workers
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(router, workers.NewTelemetryWorker(log, monitor, config.TelemetryInterval))
	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		sup.Run(ctx)
	}()

	// 6. Debug inspector
	internal.StartDebugServer(db, config.DebugPort, "/inspect", internal.ChatMapper, monitor.Stats)

	// 7. HTTP & websocket server
	tokens := auth.NewTokenManager(config.AuthSecret, config.AuthTokenDuration)
	server := ws.NewServer(log, ws.Config{
		Addr:             fmt.Sprintf("%s:%d", config.Host, config.Port),
		WriteWait:        config.WriteWait,
		PongWait:         config.PongWait,
		PingInterval:     config.PongWait * 9 / 10,
		HandshakeTimeout: config.HandshakeTimeout,
		MaxMessageSize:   config.MaxMessageSize,
		SinkBuffer:       config.ConnectionBufferSize,
	}, registry, chatService, roomService, messageService, presenceService, tokens)

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting chat server", "host", config.Host, "port", config.Port, "at", time.Now().UTC())
		if err := server.Run(ctx); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 9. Final Cleanup
	sup.Stop()
	<-supDone
	log.Info("Program stopped cleanly")

	return nil
}

// forbiddenWords splits the comma-separated moderation list. An empty
// setting disables censoring entirely.
func forbiddenWords(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	words := make([]string, 0, len(parts))
	for _, p := range parts {
		if w := strings.TrimSpace(p); w != "" {
			words = append(words, w)
		}
	}
	return words
}
