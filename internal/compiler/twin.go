package compiler

import (
	"fmt"
	"time"

	"cuelang.org/go/cue"

	"github.com/roach88/vacc/internal/deck"
	"github.com/roach88/vacc/internal/engine"
)

type twinSpec struct {
	Processors int     `json:"processors"`
	Particles  int     `json:"particles"`
	Integrator string  `json:"integrator"`
	Noise      float64 `json:"noise"`
	Solver     struct {
		Command []string `json:"command"`
		Timeout string   `json:"timeout"`
	} `json:"solver"`
	DataDir    string `json:"data_dir"`
	WorkRoot   string `json:"work_root"`
	Grace      string `json:"grace"`
	RetryDelay string `json:"retry_delay"`
}

// CompileTwin reads the optional `twin` struct of v into a runtime
// configuration. Absent fields take the #Twin schema defaults; unknown
// fields are rejected. The layout name, when present, is carried over.
func CompileTwin(v cue.Value) (engine.Config, error) {
	cfg := engine.DefaultConfig()
	if err := v.Err(); err != nil {
		return cfg, formatCUEError(err)
	}

	def, err := schema(v, "#Twin")
	if err != nil {
		return cfg, err
	}
	u := def
	tv := v.LookupPath(cue.ParsePath("twin"))
	if tv.Exists() {
		u = def.Unify(tv)
	}
	if err := u.Validate(cue.Concrete(true)); err != nil {
		return cfg, formatCUEError(err)
	}

	var spec twinSpec
	if err := u.Decode(&spec); err != nil {
		return cfg, formatCUEError(err)
	}

	cfg.Processors = spec.Processors
	cfg.Particles = spec.Particles
	cfg.Noise = spec.Noise
	cfg.Solver.Command = spec.Solver.Command
	cfg.DataDir = spec.DataDir
	if spec.WorkRoot != "" {
		cfg.WorkRoot = spec.WorkRoot
	}

	switch spec.Integrator {
	case "linear-map":
		cfg.Integrator = deck.LinearMap
	case "lorentz":
		cfg.Integrator = deck.Lorentz
	}

	durations := []struct {
		field string
		raw   string
		dst   *time.Duration
	}{
		{"solver.timeout", spec.Solver.Timeout, &cfg.Solver.Timeout},
		{"grace", spec.Grace, &cfg.Grace},
		{"retry_delay", spec.RetryDelay, &cfg.RetryDelay},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.raw)
		if err != nil || parsed < 0 {
			return cfg, &CompileError{
				Field:   "twin." + d.field,
				Message: fmt.Sprintf("invalid duration %q", d.raw),
				Pos:     tv.LookupPath(cue.ParsePath(d.field)).Pos(),
			}
		}
		*d.dst = parsed
	}

	if nv := v.LookupPath(cue.ParsePath("layout.name")); nv.Exists() {
		if name, err := nv.String(); err == nil {
			cfg.Layout = name
		}
	}
	return cfg, nil
}
