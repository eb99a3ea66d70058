// cmd/pos/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"retailpos/internal/config"
	"retailpos/internal/register"
	"retailpos/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, "retailpos")
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("Failed to flush traces: %v", err)
		}
	}()

	logger := log.New(os.Stderr, "pos: ", log.LstdFlags)
	reg, err := register.FromConfig(ctx, cfg, os.Stdin, os.Stdout, logger)
	if err != nil {
		log.Fatalf("Failed to start register: %v", err)
	}

	fmt.Printf("Point of sale ready, data in %s\n", cfg.DataDir)
	if err := reg.Run(ctx); err != nil {
		log.Printf("Register stopped: %v", err)
	}
}
