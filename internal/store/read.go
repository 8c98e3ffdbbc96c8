package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/vacc/internal/lattice"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("not found")

// ReadRuns returns every run ordered by start time, then ID.
//
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ReadRuns(ctx context.Context) ([]lattice.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, layout, integrator, elements, started_at
		FROM runs
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []lattice.RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns the run with the given ID, or ErrNotFound.
func (s *Store) ReadRun(ctx context.Context, id string) (lattice.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, layout, integrator, elements, started_at
		FROM runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return lattice.RunRecord{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// LatestRun returns the most recently started run, or ErrNotFound.
func (s *Store) LatestRun(ctx context.Context) (lattice.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, layout, integrator, elements, started_at
		FROM runs
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT 1
	`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return lattice.RunRecord{}, fmt.Errorf("latest run: %w", ErrNotFound)
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (lattice.RunRecord, error) {
	var (
		run     lattice.RunRecord
		started int64
	)
	if err := sc.Scan(&run.ID, &run.Layout, &run.Integrator, &run.Elements, &started); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, err
		}
		return run, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt = time.Unix(0, started).UTC()
	return run, nil
}

// ReadCycles returns the last limit cycles of a run in seq order, with
// their readbacks. A limit of zero or less returns every cycle.
//
// Returns an empty slice (not nil) if the run has no cycles.
func (s *Store) ReadCycles(ctx context.Context, runID string, limit int) ([]lattice.CycleRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, deck_hash, started_at, duration_ns, error
		FROM (
			SELECT * FROM cycles
			WHERE run_id = ?
			ORDER BY seq DESC
			LIMIT ?
		)
		ORDER BY seq ASC
	`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}

	cycles := []lattice.CycleRecord{}
	index := make(map[int64]int)
	for rows.Next() {
		var (
			c        lattice.CycleRecord
			started  int64
			duration int64
		)
		if err := rows.Scan(&c.RunID, &c.Seq, &c.DeckHash, &started, &duration, &c.Error); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		c.StartedAt = time.Unix(0, started).UTC()
		c.Duration = time.Duration(duration)
		index[c.Seq] = len(cycles)
		cycles = append(cycles, c)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterate cycles: %w", err)
	}
	if len(cycles) == 0 {
		return cycles, nil
	}

	// One connection: the cycle rows must be closed before this query.
	rb, err := s.db.QueryContext(ctx, `
		SELECT seq, channel, value
		FROM readbacks
		WHERE run_id = ? AND seq BETWEEN ? AND ?
		ORDER BY seq ASC, channel COLLATE BINARY ASC
	`, runID, cycles[0].Seq, cycles[len(cycles)-1].Seq)
	if err != nil {
		return nil, fmt.Errorf("query readbacks: %w", err)
	}
	defer rb.Close()

	for rb.Next() {
		var (
			seq     int64
			channel string
			value   float64
		)
		if err := rb.Scan(&seq, &channel, &value); err != nil {
			return nil, fmt.Errorf("scan readback: %w", err)
		}
		i, ok := index[seq]
		if !ok {
			continue
		}
		if cycles[i].Readbacks == nil {
			cycles[i].Readbacks = make(map[string]float64)
		}
		cycles[i].Readbacks[channel] = value
	}
	if err := rb.Err(); err != nil {
		return nil, fmt.Errorf("iterate readbacks: %w", err)
	}
	return cycles, nil
}

// ReadReadbacks returns the readbacks published by one cycle.
//
// Returns an empty map (not nil) if the cycle published none.
func (s *Store) ReadReadbacks(ctx context.Context, runID string, seq int64) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel, value
		FROM readbacks
		WHERE run_id = ? AND seq = ?
		ORDER BY channel COLLATE BINARY ASC
	`, runID, seq)
	if err != nil {
		return nil, fmt.Errorf("query readbacks: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var (
			channel string
			value   float64
		)
		if err := rows.Scan(&channel, &value); err != nil {
			return nil, fmt.Errorf("scan readback: %w", err)
		}
		out[channel] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readbacks: %w", err)
	}
	return out, nil
}

// CycleStats returns the number of recorded and failed cycles of a run.
func (s *Store) CycleStats(ctx context.Context, runID string) (total, failed int64, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM cycles WHERE run_id = ?),
			(SELECT COUNT(*) FROM cycles WHERE run_id = ? AND error != '')
	`, runID, runID).Scan(&total, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("cycle stats: %w", err)
	}
	return total, failed, nil
}
