// Package main applies the embedded PostgreSQL schema migrations.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cory-johannsen/demonlord/internal/config"
	"github.com/cory-johannsen/demonlord/migrations"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	direction := flag.String("direction", "up", "migration direction: up or down")
	steps := flag.Int("steps", 0, "number of steps (0 = all)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	// SQLite applies its schema when the store opens.
	if cfg.Database.Driver != "postgres" {
		log.Fatalf("database.driver is %q; nothing to migrate", cfg.Database.Driver)
	}

	n := *steps
	switch *direction {
	case "up":
	case "down":
		n = -n
	default:
		log.Fatalf("invalid direction %q: must be 'up' or 'down'", *direction)
	}

	res, err := migrations.Run(cfg.Database.DSN(), *direction, n)
	if err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	if !res.Changed {
		fmt.Fprintf(os.Stdout, "schema of %s already current (version=%d dirty=%v) [%s]\n",
			cfg.Database.Name, res.Version, res.Dirty, time.Since(start))
		return
	}
	fmt.Fprintf(os.Stdout, "%s %s: now at version=%d dirty=%v [%s]\n",
		*direction, cfg.Database.Name, res.Version, res.Dirty, time.Since(start))
}
