package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/demonlord/internal/game/actor"
	"github.com/cory-johannsen/demonlord/internal/game/effect"
	"github.com/cory-johannsen/demonlord/internal/storage"
)

// SubjectRepository persists subjects and their effects. Each effect batch runs in its own
// transaction with the subject row locked.
type SubjectRepository struct {
	db *pgxpool.Pool
}

// NewSubjectRepository creates a SubjectRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool with the subjects schema applied.
func NewSubjectRepository(db *pgxpool.Pool) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// LoadSubject implements storage.Store.
func (r *SubjectRepository) LoadSubject(ctx context.Context, id string) (*actor.Subject, error) {
	var s actor.Subject
	var base, items []byte
	err := r.db.QueryRow(ctx, `
		SELECT id, name, type, owners, base, items, defeated
		FROM subjects WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.Type, &s.Owners, &base, &items, &s.Defeated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("subject %q: %w", id, storage.ErrSubjectNotFound)
		}
		return nil, fmt.Errorf("querying subject: %w", err)
	}
	if err := decodeSubjectDocs(&s, base, items); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `SELECT doc FROM effects WHERE subject_id = $1 ORDER BY ordinal`, id)
	if err != nil {
		return nil, fmt.Errorf("querying effects: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEffect(rows)
		if err != nil {
			return nil, err
		}
		s.Effects = append(s.Effects, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating effects: %w", err)
	}
	return &s, nil
}

// ListSubjects implements storage.Store.
func (r *SubjectRepository) ListSubjects(ctx context.Context) ([]*actor.Subject, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, type, owners, base, items, defeated
		FROM subjects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing subjects: %w", err)
	}
	var out []*actor.Subject
	byID := make(map[string]*actor.Subject)
	for rows.Next() {
		var s actor.Subject
		var base, items []byte
		if err := rows.Scan(&s.ID, &s.Name, &s.Type, &s.Owners, &base, &items, &s.Defeated); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning subject: %w", err)
		}
		if err := decodeSubjectDocs(&s, base, items); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, &s)
		byID[s.ID] = &s
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subjects: %w", err)
	}

	erows, err := r.db.Query(ctx, `SELECT subject_id, doc FROM effects ORDER BY subject_id, ordinal`)
	if err != nil {
		return nil, fmt.Errorf("listing effects: %w", err)
	}
	defer erows.Close()
	for erows.Next() {
		var subjectID string
		var doc []byte
		if err := erows.Scan(&subjectID, &doc); err != nil {
			return nil, fmt.Errorf("scanning effect: %w", err)
		}
		var e effect.Effect
		if err := json.Unmarshal(doc, &e); err != nil {
			return nil, fmt.Errorf("decoding effect of %q: %w", subjectID, err)
		}
		if s, ok := byID[subjectID]; ok {
			s.Effects = append(s.Effects, &e)
		}
	}
	if err := erows.Err(); err != nil {
		return nil, fmt.Errorf("iterating effects: %w", err)
	}
	return out, nil
}

// SaveSubject implements storage.Store.
func (r *SubjectRepository) SaveSubject(ctx context.Context, s *actor.Subject) error {
	base, err := json.Marshal(s.Base)
	if err != nil {
		return fmt.Errorf("encoding base of %q: %w", s.ID, err)
	}
	items, err := json.Marshal(s.Items)
	if err != nil {
		return fmt.Errorf("encoding items of %q: %w", s.ID, err)
	}
	owners := s.Owners
	if owners == nil {
		owners = []string{}
	}
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO subjects (id, name, type, owners, base, items, defeated, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name, type = EXCLUDED.type, owners = EXCLUDED.owners,
				base = EXCLUDED.base, items = EXCLUDED.items, defeated = EXCLUDED.defeated,
				updated_at = NOW()`,
			s.ID, s.Name, s.Type, owners, base, items, s.Defeated,
		)
		if err != nil {
			return fmt.Errorf("upserting subject %q: %w", s.ID, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM effects WHERE subject_id = $1`, s.ID); err != nil {
			return fmt.Errorf("clearing effects of %q: %w", s.ID, err)
		}
		return insertEffects(ctx, tx, s.ID, 0, s.Effects)
	})
}

// CreateEffects implements storage.Store.
func (r *SubjectRepository) CreateEffects(ctx context.Context, subjectID string, effects []*effect.Effect) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockSubject(ctx, tx, subjectID); err != nil {
			return err
		}
		var next int64
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(ordinal) + 1, 0) FROM effects WHERE subject_id = $1`, subjectID,
		).Scan(&next); err != nil {
			return fmt.Errorf("reading next ordinal: %w", err)
		}
		return insertEffects(ctx, tx, subjectID, next, effects)
	})
}

// UpdateEffects implements storage.Store.
func (r *SubjectRepository) UpdateEffects(ctx context.Context, subjectID string, updates []effect.Update) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockSubject(ctx, tx, subjectID); err != nil {
			return err
		}
		for _, u := range updates {
			e, err := scanEffect(tx.QueryRow(ctx,
				`SELECT doc FROM effects WHERE subject_id = $1 AND id = $2`, subjectID, u.ID))
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("subject %q effect %q: %w", subjectID, u.ID, storage.ErrEffectNotFound)
				}
				return err
			}
			u.ApplyTo(e)
			doc, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encoding effect %q: %w", e.ID, err)
			}
			if _, err := tx.Exec(ctx,
				`UPDATE effects SET doc = $3 WHERE subject_id = $1 AND id = $2`, subjectID, u.ID, doc,
			); err != nil {
				return fmt.Errorf("updating effect %q: %w", u.ID, err)
			}
		}
		return nil
	})
}

// DeleteEffects implements storage.Store.
func (r *SubjectRepository) DeleteEffects(ctx context.Context, subjectID string, ids []string) error {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockSubject(ctx, tx, subjectID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM effects WHERE subject_id = $1 AND id = ANY($2)`, subjectID, ids)
		if err != nil {
			return fmt.Errorf("deleting effects: %w", err)
		}
		if tag.RowsAffected() != int64(len(want)) {
			return fmt.Errorf("subject %q: deleted %d of %d effects: %w",
				subjectID, tag.RowsAffected(), len(want), storage.ErrEffectNotFound)
		}
		return nil
	})
}

func lockSubject(ctx context.Context, tx pgx.Tx, subjectID string) error {
	var id string
	err := tx.QueryRow(ctx, `SELECT id FROM subjects WHERE id = $1 FOR UPDATE`, subjectID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("subject %q: %w", subjectID, storage.ErrSubjectNotFound)
		}
		return fmt.Errorf("locking subject: %w", err)
	}
	return nil
}

func insertEffects(ctx context.Context, tx pgx.Tx, subjectID string, first int64, effects []*effect.Effect) error {
	for i, e := range effects {
		doc, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encoding effect %q: %w", e.ID, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO effects (subject_id, id, ordinal, doc) VALUES ($1, $2, $3, $4)`,
			subjectID, e.ID, first+int64(i), doc,
		); err != nil {
			if isDuplicateKeyError(err) {
				return fmt.Errorf("subject %q effect %q: %w", subjectID, e.ID, storage.ErrDuplicateEffect)
			}
			return fmt.Errorf("inserting effect %q: %w", e.ID, err)
		}
	}
	return nil
}

func scanEffect(row pgx.Row) (*effect.Effect, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning effect: %w", err)
	}
	var e effect.Effect
	if err := json.Unmarshal(doc, &e); err != nil {
		return nil, fmt.Errorf("decoding effect: %w", err)
	}
	return &e, nil
}

func decodeSubjectDocs(s *actor.Subject, base, items []byte) error {
	if len(s.Owners) == 0 {
		s.Owners = nil
	}
	if err := json.Unmarshal(base, &s.Base); err != nil {
		return fmt.Errorf("decoding base of %q: %w", s.ID, err)
	}
	if err := json.Unmarshal(items, &s.Items); err != nil {
		return fmt.Errorf("decoding items of %q: %w", s.ID, err)
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// SQLSTATE 23505 is unique_violation.
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}

var (
	_ storage.Store  = (*SubjectRepository)(nil)
	_ storage.Pinger = (*SubjectRepository)(nil)
)
