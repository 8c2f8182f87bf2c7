// Package migrations embeds the PostgreSQL schema migrations and applies them.
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// FS holds the golang-migrate numbered up/down files.
//
//go:embed *.sql
var FS embed.FS

// Result describes the schema after a run.
type Result struct {
	Version uint
	Dirty   bool
	// Changed is false when the schema was already at the target.
	Changed bool
}

// Run migrates the database at dsn. A positive steps moves up that many versions, a
// negative steps moves down, and zero migrates all the way in direction ("up" or "down").
//
// Postcondition: Returns the resulting version, or an error leaving the schema as far as it got.
func Run(dsn, direction string, steps int) (Result, error) {
	src, err := iofs.New(FS, ".")
	if err != nil {
		return Result{}, fmt.Errorf("opening embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return Result{}, fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	switch {
	case steps != 0:
		err = m.Steps(steps)
	case direction == "up":
		err = m.Up()
	case direction == "down":
		err = m.Down()
	default:
		return Result{}, fmt.Errorf("invalid direction %q: must be 'up' or 'down'", direction)
	}
	res := Result{Changed: !errors.Is(err, migrate.ErrNoChange)}
	if err != nil && res.Changed {
		return res, fmt.Errorf("migrating %s: %w", direction, err)
	}
	res.Version, res.Dirty, err = m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return res, fmt.Errorf("reading version: %w", err)
	}
	return res, nil
}
