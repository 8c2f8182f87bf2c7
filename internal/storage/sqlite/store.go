// Package sqlite provides a SQLite-backed Store for standalone deployments.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/cory-johannsen/demonlord/internal/game/actor"
	"github.com/cory-johannsen/demonlord/internal/game/effect"
	"github.com/cory-johannsen/demonlord/internal/storage"
)

//go:embed schema.sql
var schema string

// Store persists subjects in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var (
	_ storage.Store  = (*Store)(nil)
	_ storage.Pinger = (*Store)(nil)
)

// Open opens a SQLite store at path and applies the embedded schema.
//
// Precondition: path must be a file path or ":memory:".
// Postcondition: Returns a ready Store or a non-nil error.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if path != ":memory:" {
		path = filepath.Clean(path)
	}
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite has a single writer; one connection also keeps ":memory:" databases shared.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping implements storage.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// LoadSubject implements storage.Store.
func (s *Store) LoadSubject(ctx context.Context, id string) (*actor.Subject, error) {
	sub, err := scanSubject(s.sqlDB.QueryRowContext(ctx, `
		SELECT id, name, type, owners, base, items, defeated FROM subjects WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("subject %q: %w", id, storage.ErrSubjectNotFound)
		}
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT doc FROM effects WHERE subject_id = ? ORDER BY ordinal`, id)
	if err != nil {
		return nil, fmt.Errorf("query effects: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan effect: %w", err)
		}
		e, err := decodeEffect(doc)
		if err != nil {
			return nil, err
		}
		sub.Effects = append(sub.Effects, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate effects: %w", err)
	}
	return sub, nil
}

// ListSubjects implements storage.Store.
func (s *Store) ListSubjects(ctx context.Context) ([]*actor.Subject, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT id, name, type, owners, base, items, defeated FROM subjects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	var out []*actor.Subject
	byID := make(map[string]*actor.Subject)
	for rows.Next() {
		sub, err := scanSubject(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, sub)
		byID[sub.ID] = sub
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subjects: %w", err)
	}

	erows, err := s.sqlDB.QueryContext(ctx, `SELECT subject_id, doc FROM effects ORDER BY subject_id, ordinal`)
	if err != nil {
		return nil, fmt.Errorf("list effects: %w", err)
	}
	defer erows.Close()
	for erows.Next() {
		var subjectID, doc string
		if err := erows.Scan(&subjectID, &doc); err != nil {
			return nil, fmt.Errorf("scan effect: %w", err)
		}
		e, err := decodeEffect(doc)
		if err != nil {
			return nil, err
		}
		if sub, ok := byID[subjectID]; ok {
			sub.Effects = append(sub.Effects, e)
		}
	}
	if err := erows.Err(); err != nil {
		return nil, fmt.Errorf("iterate effects: %w", err)
	}
	return out, nil
}

// SaveSubject implements storage.Store.
func (s *Store) SaveSubject(ctx context.Context, sub *actor.Subject) error {
	owners, err := json.Marshal(sub.Owners)
	if err != nil {
		return fmt.Errorf("encode owners of %q: %w", sub.ID, err)
	}
	base, err := json.Marshal(sub.Base)
	if err != nil {
		return fmt.Errorf("encode base of %q: %w", sub.ID, err)
	}
	items, err := json.Marshal(sub.Items)
	if err != nil {
		return fmt.Errorf("encode items of %q: %w", sub.ID, err)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO subjects (id, name, type, owners, base, items, defeated, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				name = excluded.name, type = excluded.type, owners = excluded.owners,
				base = excluded.base, items = excluded.items, defeated = excluded.defeated,
				updated_at = excluded.updated_at`,
			sub.ID, sub.Name, sub.Type, string(owners), string(base), string(items), sub.Defeated,
			time.Now().UTC().UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("upsert subject %q: %w", sub.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM effects WHERE subject_id = ?`, sub.ID); err != nil {
			return fmt.Errorf("clear effects of %q: %w", sub.ID, err)
		}
		return insertEffects(ctx, tx, sub.ID, 0, sub.Effects)
	})
}

// CreateEffects implements storage.Store.
func (s *Store) CreateEffects(ctx context.Context, subjectID string, effects []*effect.Effect) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := requireSubject(ctx, tx, subjectID); err != nil {
			return err
		}
		var next int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(ordinal) + 1, 0) FROM effects WHERE subject_id = ?`, subjectID,
		).Scan(&next); err != nil {
			return fmt.Errorf("read next ordinal: %w", err)
		}
		return insertEffects(ctx, tx, subjectID, next, effects)
	})
}

// UpdateEffects implements storage.Store.
func (s *Store) UpdateEffects(ctx context.Context, subjectID string, updates []effect.Update) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := requireSubject(ctx, tx, subjectID); err != nil {
			return err
		}
		for _, u := range updates {
			var doc string
			err := tx.QueryRowContext(ctx,
				`SELECT doc FROM effects WHERE subject_id = ? AND id = ?`, subjectID, u.ID).Scan(&doc)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("subject %q effect %q: %w", subjectID, u.ID, storage.ErrEffectNotFound)
				}
				return fmt.Errorf("read effect %q: %w", u.ID, err)
			}
			e, err := decodeEffect(doc)
			if err != nil {
				return err
			}
			u.ApplyTo(e)
			out, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encode effect %q: %w", e.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE effects SET doc = ? WHERE subject_id = ? AND id = ?`, string(out), subjectID, u.ID,
			); err != nil {
				return fmt.Errorf("update effect %q: %w", u.ID, err)
			}
		}
		return nil
	})
}

// DeleteEffects implements storage.Store.
func (s *Store) DeleteEffects(ctx context.Context, subjectID string, ids []string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := requireSubject(ctx, tx, subjectID); err != nil {
			return err
		}
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			res, err := tx.ExecContext(ctx, `DELETE FROM effects WHERE subject_id = ? AND id = ?`, subjectID, id)
			if err != nil {
				return fmt.Errorf("delete effect %q: %w", id, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("delete effect %q: %w", id, err)
			}
			if n == 0 {
				return fmt.Errorf("subject %q effect %q: %w", subjectID, id, storage.ErrEffectNotFound)
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func requireSubject(ctx context.Context, tx *sql.Tx, subjectID string) error {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM subjects WHERE id = ?`, subjectID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("subject %q: %w", subjectID, storage.ErrSubjectNotFound)
		}
		return fmt.Errorf("read subject: %w", err)
	}
	return nil
}

func insertEffects(ctx context.Context, tx *sql.Tx, subjectID string, first int64, effects []*effect.Effect) error {
	for i, e := range effects {
		doc, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode effect %q: %w", e.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO effects (subject_id, id, ordinal, doc) VALUES (?, ?, ?, ?)`,
			subjectID, e.ID, first+int64(i), string(doc),
		); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("subject %q effect %q: %w", subjectID, e.ID, storage.ErrDuplicateEffect)
			}
			return fmt.Errorf("insert effect %q: %w", e.ID, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubject(row rowScanner) (*actor.Subject, error) {
	var sub actor.Subject
	var owners, base, items string
	if err := row.Scan(&sub.ID, &sub.Name, &sub.Type, &owners, &base, &items, &sub.Defeated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan subject: %w", err)
	}
	if err := json.Unmarshal([]byte(owners), &sub.Owners); err != nil {
		return nil, fmt.Errorf("decode owners of %q: %w", sub.ID, err)
	}
	if err := json.Unmarshal([]byte(base), &sub.Base); err != nil {
		return nil, fmt.Errorf("decode base of %q: %w", sub.ID, err)
	}
	if err := json.Unmarshal([]byte(items), &sub.Items); err != nil {
		return nil, fmt.Errorf("decode items of %q: %w", sub.ID, err)
	}
	return &sub, nil
}

func decodeEffect(doc string) (*effect.Effect, error) {
	var e effect.Effect
	if err := json.Unmarshal([]byte(doc), &e); err != nil {
		return nil, fmt.Errorf("decode effect: %w", err)
	}
	return &e, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
