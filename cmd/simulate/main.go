// Package main runs an encounter scenario through the combat clock and expiration engine
// against an in-memory store and prints the transcript.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/cory-johannsen/demonlord/internal/app"
	"github.com/cory-johannsen/demonlord/internal/config"
	"github.com/cory-johannsen/demonlord/internal/game/effect"
	"github.com/cory-johannsen/demonlord/internal/game/stats"
	"github.com/cory-johannsen/demonlord/internal/observability"
)

func main() {
	contentDir := flag.String("content", "content", "content root holding subjects/, effects/ and scripts/")
	scenarioPath := flag.String("scenario", "content/scenarios/ambush.yaml", "scenario YAML file")
	logLevel := flag.String("log-level", "warn", "log level: debug, info, warn, error")
	flag.Parse()

	ctx := context.Background()

	v := config.NewViper()
	v.Set("database.driver", "memory")
	v.Set("server.mode", "standalone")
	v.Set("logging.level", *logLevel)
	v.Set("logging.format", "console")
	v.Set("engine.scripts_dir", filepath.Join(*contentDir, "scripts"))
	cfg, err := config.LoadFromViper(v)
	if err != nil {
		log.Fatalf("building config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "simulate")
	if err != nil {
		log.Fatalf("creating logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	a, cleanup, err := app.InitializeApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("assembling evaluator: %v", err)
	}
	defer cleanup()

	subjects, err := app.LoadContent(*contentDir, stats.DefaultSchemas(), effect.NewRegistry())
	if err != nil {
		log.Fatalf("loading content: %v", err)
	}
	if _, err := app.Import(ctx, a.Store, subjects, logger); err != nil {
		log.Fatalf("importing content: %v", err)
	}

	sc, err := app.LoadScenario(*scenarioPath)
	if err != nil {
		log.Fatalf("%v", err)
	}
	fmt.Fprintf(os.Stdout, "scenario %s\n", sc.Name)
	if err := a.RunScenario(ctx, sc, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
