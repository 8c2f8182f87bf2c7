package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/cory-johannsen/demonlord/internal/game/actor"
	"github.com/cory-johannsen/demonlord/internal/game/effect"
	"github.com/cory-johannsen/demonlord/internal/game/stats"
	"github.com/cory-johannsen/demonlord/internal/storage"
)

// LoadContent reads <root>/effects as the effect template library and <root>/subjects as
// subjects, linking item effect references to the library.
//
// Precondition: <root>/subjects must exist; <root>/effects is optional.
// Postcondition: Returns validated, linked subjects or a non-nil error.
func LoadContent(root string, schemas stats.Schemas, policies *effect.Registry) ([]*actor.Subject, error) {
	lib := effect.NewLibrary()
	effectsDir := filepath.Join(root, "effects")
	if _, err := os.Stat(effectsDir); err == nil {
		if lib, err = effect.LoadDirectory(effectsDir, policies); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading effect dir %q: %w", effectsDir, err)
	}

	subjects, err := actor.LoadSubjectsFromDir(filepath.Join(root, "subjects"), schemas)
	if err != nil {
		return nil, err
	}
	if err := actor.LinkItemEffects(subjects, lib); err != nil {
		return nil, err
	}
	return subjects, nil
}

// Import saves every subject into store, replacing existing subjects with the same ID.
//
// Postcondition: Returns the number of subjects saved before the first error.
func Import(ctx context.Context, store storage.Store, subjects []*actor.Subject, logger *zap.Logger) (int, error) {
	for i, s := range subjects {
		if err := store.SaveSubject(ctx, s); err != nil {
			return i, fmt.Errorf("saving subject %q: %w", s.ID, err)
		}
		logger.Debug("subject imported",
			zap.String("subject", s.ID),
			zap.Int("effects", len(s.Effects)),
			zap.Int("items", len(s.Items)),
		)
	}
	return len(subjects), nil
}
