package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/mindhaven/companion/internal/config"
	"github.com/mindhaven/companion/internal/devserver"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if config.AppConfig.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := devserver.NewStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	var responder devserver.Responder
	if config.AppConfig.GeminiAPIKey != "" {
		responder, err = devserver.NewGeminiResponder(ctx, config.AppConfig.GeminiAPIKey)
		if err != nil {
			log.Fatalf("Failed to initialize Gemini responder: %v", err)
		}
		log.Println("Using Gemini-generated replies")
	} else {
		responder = devserver.CannedResponder{}
		log.Println("GEMINI_API_KEY not set, using canned replies")
	}
	defer responder.Close()

	server := devserver.NewServer(store, responder, []byte(config.AppConfig.JWTSecret))

	if err := devserver.RunServer(ctx, ":"+config.AppConfig.HTTPPort, server.Router()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server exiting gracefully")
}
