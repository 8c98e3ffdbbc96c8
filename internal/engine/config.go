package engine

import (
	"fmt"
	"os"
	"time"

	"github.com/roach88/vacc/internal/deck"
)

// SolverConfig selects the external solver.
type SolverConfig struct {
	// Command is the solver executable followed by its arguments. It runs
	// with the working directory as its current directory.
	Command []string `json:"command"`

	// Timeout bounds one solver run. Zero disables the bound.
	Timeout time.Duration `json:"timeout"`
}

// Config holds the runtime configuration.
type Config struct {
	Processors int             `json:"processors"`
	Particles  int             `json:"particles"`
	Integrator deck.Integrator `json:"integrator"`

	// Noise is the jitter fraction applied to every setting each cycle.
	Noise float64 `json:"noise"`

	Solver SolverConfig `json:"solver"`

	// DataDir holds static solver input files. Every regular file in it is
	// symlinked into the working directory at start. Optional.
	DataDir string `json:"data_dir"`

	// WorkRoot is the existing directory under which the working directory
	// is created.
	WorkRoot string `json:"work_root"`

	// Grace is how long Stop waits for the cycle loop before cancelling
	// the in-flight solver.
	Grace time.Duration `json:"grace"`

	// RetryDelay is the pause after a failed cycle.
	RetryDelay time.Duration `json:"retry_delay"`

	// Layout names the beamline layout. It is recorded with each run.
	Layout string `json:"layout"`
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() Config {
	return Config{
		Processors: 1,
		Particles:  1000,
		Integrator: deck.LinearMap,
		Noise:      0.001,
		Solver: SolverConfig{
			Command: []string{"ImpactZexe"},
			Timeout: 5 * time.Minute,
		},
		WorkRoot:   os.TempDir(),
		Grace:      2 * time.Second,
		RetryDelay: time.Second,
	}
}

// Header returns the deck preamble values of the configuration.
func (c Config) Header() deck.Header {
	return deck.Header{
		Processors: c.Processors,
		Particles:  c.Particles,
		Integrator: c.Integrator,
	}
}

// Validate returns a CONFIG *RuntimeError describing the first invalid
// field.
func (c Config) Validate() error {
	if err := c.Header().Validate(); err != nil {
		return &RuntimeError{Code: ErrCodeConfig, Message: "invalid deck header", Err: err}
	}
	if c.Noise < 0 || c.Noise >= 1 {
		return configError("noise fraction %g outside [0, 1)", c.Noise)
	}
	if c.Solver.Timeout < 0 {
		return configError("negative solver timeout %s", c.Solver.Timeout)
	}
	if c.Grace < 0 {
		return configError("negative grace period %s", c.Grace)
	}
	if c.RetryDelay < 0 {
		return configError("negative retry delay %s", c.RetryDelay)
	}
	if c.WorkRoot == "" {
		return configError("work root is required")
	}
	return nil
}

func configError(format string, args ...any) *RuntimeError {
	return &RuntimeError{Code: ErrCodeConfig, Message: fmt.Sprintf(format, args...)}
}
