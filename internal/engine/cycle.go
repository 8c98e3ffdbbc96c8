package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"

	"github.com/roach88/vacc/internal/deck"
	"github.com/roach88/vacc/internal/lattice"
)

// runCycle performs one simulation cycle. The steps run strictly in order:
//
//  1. snapshot the live settings (raw and jittered)
//  2. build and render the deck from the jittered snapshot
//  3. write the deck into the working directory
//  4. run the solver
//  5. read the result files
//  6. publish monitor readbacks, one output row per deck output
//  7. echo every write channel: live value to RSET, jittered value to RD
//
// The cycle is recorded whether or not it succeeds.
func (r *Runtime) runCycle(ctx context.Context) error {
	seq := r.cycles.Add(1)
	r.mu.Lock()
	runID, dir, log := r.runID, r.workDir, r.log
	r.mu.Unlock()
	log = log.With("cycle", seq)

	started := r.now()
	rec := lattice.CycleRecord{RunID: runID, Seq: seq, StartedAt: started}

	readbacks, hash, err := r.cycleSteps(ctx, dir)
	rec.DeckHash = hash
	rec.Readbacks = readbacks
	rec.Duration = r.now().Sub(started)

	if err != nil {
		var re *RuntimeError
		if errors.As(err, &re) {
			re.RunID = runID
			re.Cycle = seq
		} else {
			err = &RuntimeError{Code: ErrCodeWorkDir, Message: "cycle failed", RunID: runID, Cycle: seq, Err: err}
		}
		rec.Error = err.Error()
		r.failures.Add(1)
	} else {
		log.Debug("cycle complete", "deck_hash", hash, "readbacks", len(readbacks), "duration", rec.Duration)
	}

	if werr := r.recorder.WriteCycle(context.WithoutCancel(ctx), rec); werr != nil {
		log.Warn("record cycle failed", "error", werr)
	}

	r.mu.Lock()
	r.lastErr = err
	r.lastCycleAt = started
	r.mu.Unlock()
	return err
}

func (r *Runtime) cycleSteps(ctx context.Context, dir string) (map[string]float64, string, error) {
	_, jittered := r.settings.Snapshot(r.cfg.Noise, r.rng)

	d, err := r.builder.Build(r.elements, jittered)
	if err != nil {
		return nil, "", &RuntimeError{Code: ErrCodeConfig, Message: "build deck", Err: err}
	}
	r.warnMissing(d.Missing)

	text, err := deck.Render(r.cfg.Header(), d.Records)
	if err != nil {
		return nil, "", &RuntimeError{Code: ErrCodeConfig, Message: "render deck", Err: err}
	}
	hash := lattice.DeckHash(text)
	if err := os.WriteFile(filepath.Join(dir, DeckFile), []byte(text), 0o644); err != nil {
		return nil, hash, &RuntimeError{Code: ErrCodeWorkDir, Message: "write deck", Err: err}
	}

	sctx := ctx
	if r.cfg.Solver.Timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, r.cfg.Solver.Timeout)
		defer cancel()
	}
	if err := r.solver.Solve(sctx, dir); err != nil {
		return nil, hash, &RuntimeError{Code: ErrCodeSolverFailed, Message: "solver run failed", Err: err}
	}

	rows, err := ReadResults(dir)
	if err != nil {
		return nil, hash, err
	}
	readbacks, err := collectOutputs(d.Outputs, rows, r.logger())
	if err != nil {
		return nil, hash, err
	}
	r.publish(readbacks, jittered)
	return readbacks, hash, nil
}

// collectOutputs maps one result row per deck output to the owning
// element's readback channels.
func collectOutputs(outputs []lattice.Element, rows []Row, log *slog.Logger) (map[string]float64, error) {
	if len(rows) < len(outputs) {
		return nil, &RuntimeError{
			Code:    ErrCodeResultFormat,
			Message: fmt.Sprintf("%d result rows for %d deck outputs", len(rows), len(outputs)),
		}
	}

	readbacks := make(map[string]float64)
	for i, el := range outputs {
		switch e := el.(type) {
		case lattice.PositionMonitor:
			row := rows[i]
			for ch, v := range map[string]float64{
				e.X:      row.XMillimetres(),
				e.Y:      row.YMillimetres(),
				e.Phase:  row.PhaseDegrees(),
				e.Energy: row.Energy,
			} {
				if ch != "" {
					readbacks[ch] = v
				}
			}
		default:
			log.Warn("unsupported output", "row", i, "element", el.Attrs().Name, "kind", lattice.Kind(el))
		}
	}
	return readbacks, nil
}

// publish pushes a cycle's monitor readbacks and the setpoint echo of every
// write channel to the host in one batch.
//
// RSET carries the live value rather than the snapshot, so a write
// ingested while the solver ran stays confirmed. RD carries the jittered
// value the deck was built from. Holding publishMu orders the batch
// against ingestion.
func (r *Runtime) publish(readbacks map[string]float64, jittered lattice.Settings) {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	live := r.settings.Clone()
	batch := maps.Clone(readbacks)
	for _, ch := range r.registry.WriteChannels() {
		p, _ := r.registry.Pair(ch)
		v, _ := live.Lookup(ch)
		batch[p.Readback] = v
		m, ok := jittered.Lookup(ch)
		if !ok {
			m = v
		}
		batch[p.Monitor] = m
	}
	if err := r.host.PutMany(batch); err != nil {
		r.logger().Warn("publish cycle values failed", "error", err)
	}
}

// warnMissing logs each channel absent from the settings once per runtime.
func (r *Runtime) warnMissing(missing []string) {
	for _, ch := range missing {
		if _, seen := r.warned[ch]; seen {
			continue
		}
		r.warned[ch] = struct{}{}
		r.logger().Warn("channel missing from settings, using 0", "channel", ch)
	}
}
