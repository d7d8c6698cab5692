package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ReadPropagation returns one propagation by ID.
// Returns an error wrapping ErrNotFound if it does not exist.
func (s *Store) ReadPropagation(ctx context.Context, id string) (Propagation, error) {
	var p Propagation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, scenario, origin, change, seq, digest
		FROM propagations
		WHERE id = ?
	`, id).Scan(&p.ID, &p.Scenario, &p.Origin, &p.Change, &p.Seq, &p.Digest)
	if errors.Is(err, sql.ErrNoRows) {
		return Propagation{}, fmt.Errorf("read propagation %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Propagation{}, fmt.Errorf("read propagation %q: %w", id, err)
	}
	return p, nil
}

// ListPropagations returns every propagation, ordered by seq ASC, id ASC.
// An empty scenario lists all scenarios.
//
// Returns an empty slice (not nil) if none exist.
func (s *Store) ListPropagations(ctx context.Context, scenario string) ([]Propagation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scenario, origin, change, seq, digest
		FROM propagations
		WHERE ? = '' OR scenario = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, scenario, scenario)
	if err != nil {
		return nil, fmt.Errorf("query propagations: %w", err)
	}
	defer rows.Close()

	props := []Propagation{}
	for rows.Next() {
		var p Propagation
		if err := rows.Scan(&p.ID, &p.Scenario, &p.Origin, &p.Change, &p.Seq, &p.Digest); err != nil {
			return nil, fmt.Errorf("scan propagation: %w", err)
		}
		props = append(props, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate propagations: %w", err)
	}
	return props, nil
}

// ReadSteps returns the steps of one propagation, ordered by seq ASC, id ASC.
//
// Returns an empty slice (not nil) if the propagation has no steps.
func (s *Store) ReadSteps(ctx context.Context, propagationID string) ([]Step, error) {
	return s.querySteps(ctx, `
		SELECT id, propagation_id, seq, node, kind, outcome, change, forwarded, uppers
		FROM steps
		WHERE propagation_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, propagationID)
}

// ReadNodeSteps returns every step recorded at node across propagations,
// ordered by seq ASC, id ASC.
func (s *Store) ReadNodeSteps(ctx context.Context, node string) ([]Step, error) {
	return s.querySteps(ctx, `
		SELECT id, propagation_id, seq, node, kind, outcome, change, forwarded, uppers
		FROM steps
		WHERE node = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, node)
}

func (s *Store) querySteps(ctx context.Context, query string, arg string) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	steps := []Step{}
	for rows.Next() {
		var st Step
		if err := rows.Scan(
			&st.ID, &st.Propagation, &st.Seq, &st.Node, &st.Kind,
			&st.Outcome, &st.Change, &st.Forwarded, &st.Uppers,
		); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}
