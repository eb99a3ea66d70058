// cmd/chaos/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"retailpos/internal/chaos"
	"retailpos/internal/config"
	"retailpos/internal/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	pause := flag.Duration("pause", 2*time.Second, "wait between experiments")
	keep := flag.Bool("keep", false, "keep the lab directory after the run")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	shutdown, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, "retailpos-chaos")
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}
	defer shutdown(ctx)

	dir, err := os.MkdirTemp("", "retailpos-chaos-")
	if err != nil {
		log.Printf("Failed to create lab directory: %v", err)
		return 2
	}
	if *keep {
		log.Printf("Lab directory: %s", dir)
	} else {
		defer os.RemoveAll(dir)
	}

	lab, err := chaos.NewLab(ctx, dir, log.New(os.Stderr, "lab: ", log.LstdFlags))
	if err != nil {
		log.Printf("Failed to prepare lab: %v", err)
		return 2
	}

	engine := chaos.NewEngine(os.Stdout, *pause)
	engine.RegisterExperiments(lab)

	gameDay := chaos.GameDay{
		Name:      "Terminal Chaos Game Day",
		Date:      time.Now(),
		Scenarios: engine.Experiments(),
	}

	held, err := engine.ExecuteGameDay(ctx, gameDay)
	if err != nil {
		log.Printf("Chaos Game Day failed: %v", err)
		return 2
	}
	if !held {
		return 1
	}
	return 0
}
