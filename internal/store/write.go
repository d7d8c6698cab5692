package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// WritePropagation inserts a propagation record. Writing an ID that is
// already stored with the same digest is a no-op; a different digest fails
// with ErrConflict.
func (s *Store) WritePropagation(ctx context.Context, p Propagation) error {
	return s.inTx(ctx, "write propagation", func(tx *sql.Tx) error {
		return writePropagation(ctx, tx, p)
	})
}

// WriteSteps inserts steps in a single transaction. Either every step is
// stored or none is. Steps whose ID already exists are skipped.
//
// Every step's propagation must already be written (foreign key).
func (s *Store) WriteSteps(ctx context.Context, steps []Step) error {
	if len(steps) == 0 {
		return nil
	}
	return s.inTx(ctx, "write steps", func(tx *sql.Tx) error {
		return writeSteps(ctx, tx, steps)
	})
}

// WriteTrace stores propagations and their steps in one transaction, so a
// conflicting propagation leaves nothing of the trace behind.
func (s *Store) WriteTrace(ctx context.Context, props []Propagation, steps []Step) error {
	return s.inTx(ctx, "write trace", func(tx *sql.Tx) error {
		for _, p := range props {
			if err := writePropagation(ctx, tx, p); err != nil {
				return err
			}
		}
		return writeSteps(ctx, tx, steps)
	})
}

func (s *Store) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

func writePropagation(ctx context.Context, tx *sql.Tx, p Propagation) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO propagations (id, scenario, origin, change, seq, digest)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, p.ID, p.Scenario, p.Origin, p.Change, p.Seq, p.Digest)
	if err != nil {
		return fmt.Errorf("propagation %s: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("propagation %s: %w", p.ID, err)
	}
	if n > 0 {
		return nil
	}

	var stored string
	err = tx.QueryRowContext(ctx, `SELECT digest FROM propagations WHERE id = ?`, p.ID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("propagation %s: %w", p.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("propagation %s: %w", p.ID, err)
	}
	if stored != p.Digest {
		return fmt.Errorf("propagation %s: %w", p.ID, ErrConflict)
	}
	return nil
}

func writeSteps(ctx context.Context, tx *sql.Tx, steps []Step) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO steps
		(id, propagation_id, seq, node, kind, outcome, change, forwarded, uppers)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, st := range steps {
		if _, err := stmt.ExecContext(ctx,
			st.ID, st.Propagation, st.Seq, st.Node, st.Kind,
			st.Outcome, st.Change, st.Forwarded, st.Uppers,
		); err != nil {
			return fmt.Errorf("step %s: %w", st.ID, err)
		}
	}
	return nil
}
