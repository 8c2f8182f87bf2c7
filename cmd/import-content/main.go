package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/demonlord/internal/app"
	"github.com/cory-johannsen/demonlord/internal/config"
	"github.com/cory-johannsen/demonlord/internal/game/effect"
	"github.com/cory-johannsen/demonlord/internal/game/stats"
)

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	contentDir := flag.String("content", "content", "content root holding subjects/ and effects/")
	dryRun := flag.Bool("dry-run", false, "validate content without writing to the store")
	flag.Parse()

	start := time.Now()
	subjects, err := app.LoadContent(*contentDir, stats.DefaultSchemas(), effect.NewRegistry())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *dryRun {
		fmt.Printf("validated %d subjects in %s\n", len(subjects), time.Since(start).Round(time.Millisecond))
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.Driver == "memory" {
		fmt.Fprintln(os.Stderr, "database.driver is memory; nothing would persist")
		os.Exit(1)
	}

	ctx := context.Background()
	logger := zap.NewNop()
	store, cleanup, err := app.ProvideStore(ctx, cfg.Database, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	n, err := app.Import(ctx, store, subjects, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error after %d subjects: %v\n", n, err)
		cleanup()
		os.Exit(1)
	}
	fmt.Printf("imported %d subjects in %s\n", n, time.Since(start).Round(time.Millisecond))
}
