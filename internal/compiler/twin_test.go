package compiler

import (
	"errors"
	"testing"
	"time"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vacc/internal/deck"
	"github.com/roach88/vacc/internal/engine"
)

func TestCompileTwin_Defaults(t *testing.T) {
	v := cuecontext.New().CompileString(`layout: {name: "fe", elements: []}`)
	require.NoError(t, v.Err())

	cfg, err := CompileTwin(v)
	require.NoError(t, err)

	want := engine.DefaultConfig()
	want.Layout = "fe"
	assert.Equal(t, want, cfg)
	require.NoError(t, cfg.Validate())
}

func TestCompileTwin_Overrides(t *testing.T) {
	v := cuecontext.New().CompileString(`
		twin: {
			processors: 4
			particles:  5000
			integrator: "lorentz"
			noise:      0
			solver: {
				command: ["mpirun", "-n", "4", "ImpactZexe"]
				timeout: "90s"
			}
			data_dir:    "/opt/twin/data"
			work_root:   "/var/tmp"
			grace:       "500ms"
			retry_delay: "3s"
		}
	`)
	require.NoError(t, v.Err())

	cfg, err := CompileTwin(v)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Processors)
	assert.Equal(t, 5000, cfg.Particles)
	assert.Equal(t, deck.Lorentz, cfg.Integrator)
	assert.Zero(t, cfg.Noise)
	assert.Equal(t, []string{"mpirun", "-n", "4", "ImpactZexe"}, cfg.Solver.Command)
	assert.Equal(t, 90*time.Second, cfg.Solver.Timeout)
	assert.Equal(t, "/opt/twin/data", cfg.DataDir)
	assert.Equal(t, "/var/tmp", cfg.WorkRoot)
	assert.Equal(t, 500*time.Millisecond, cfg.Grace)
	assert.Equal(t, 3*time.Second, cfg.RetryDelay)
	assert.Empty(t, cfg.Layout)
}

func TestCompileTwin_Errors(t *testing.T) {
	tests := map[string]string{
		"unknown field":      `twin: {cores: 2}`,
		"zero processors":    `twin: {processors: 0}`,
		"noise out of range": `twin: {noise: 1.5}`,
		"bad integrator":     `twin: {integrator: "euler"}`,
		"empty command":      `twin: {solver: command: []}`,
		"bad duration":       `twin: {grace: "soon"}`,
		"negative duration":  `twin: {retry_delay: "-1s"}`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			v := cuecontext.New().CompileString(src)
			require.NoError(t, v.Err())

			_, err := CompileTwin(v)
			require.Error(t, err)
			var ce *CompileError
			assert.True(t, errors.As(err, &ce), "got %T: %v", err, err)
		})
	}
}
