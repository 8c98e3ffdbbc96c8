package lattice

import "time"

// RunRecord describes one started twin instance.
type RunRecord struct {
	ID         string    `json:"id"`
	Layout     string    `json:"layout"`
	Integrator int       `json:"integrator"`
	Elements   int       `json:"elements"`
	StartedAt  time.Time `json:"started_at"`
}

// CycleRecord describes one completed or failed simulation cycle.
//
// Seq is the per-run cycle counter starting at 1. Error is empty for a
// successful cycle. Readbacks holds the values published from solver
// output during the cycle.
type CycleRecord struct {
	RunID     string             `json:"run_id"`
	Seq       int64              `json:"seq"`
	DeckHash  string             `json:"deck_hash"`
	StartedAt time.Time          `json:"started_at"`
	Duration  time.Duration      `json:"duration"`
	Error     string             `json:"error,omitempty"`
	Readbacks map[string]float64 `json:"readbacks,omitempty"`
}

// Failed reports whether the cycle ended in an error.
func (c CycleRecord) Failed() bool { return c.Error != "" }
