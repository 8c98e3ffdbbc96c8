package store

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/vacc/internal/lattice"
)

// WriteRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) WriteRun(ctx context.Context, run lattice.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, layout, integrator, elements, started_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Layout,
		run.Integrator,
		run.Elements,
		run.StartedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteCycle inserts a cycle record and its readbacks in one transaction.
// A cycle already recorded for the same (run, seq) is left untouched.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) WriteCycle(ctx context.Context, c lattice.CycleRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write cycle: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO cycles (run_id, seq, deck_hash, started_at, duration_ns, error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		c.RunID,
		c.Seq,
		c.DeckHash,
		c.StartedAt.UnixNano(),
		int64(c.Duration),
		c.Error,
	)
	if err != nil {
		return fmt.Errorf("write cycle: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return tx.Commit()
	}

	if len(c.Readbacks) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO readbacks (run_id, seq, channel, value) VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("write readbacks: prepare: %w", err)
		}
		defer stmt.Close()

		for _, ch := range slices.Sorted(maps.Keys(c.Readbacks)) {
			if _, err := stmt.ExecContext(ctx, c.RunID, c.Seq, ch, c.Readbacks[ch]); err != nil {
				return fmt.Errorf("write readback %s: %w", ch, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write cycle: commit: %w", err)
	}
	return nil
}
