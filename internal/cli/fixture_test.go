package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const miniLayout = `
layout: {
	name: "mini"
	elements: [
		{kind: "drift", name: "D1", length: 0.1, aperture: 0.04},
		{kind: "quadrupole", name: "Q1", length: 0.2, aperture: 0.04,
			channels: gradient_cset: "LS1_CA01:Q_D1001:GRAD_CSET"},
		{kind: "bpm", name: "BPM1",
			channels: {
				x: "LS1_CA01:BPM_D1002:XPOS_RD"
				y: "LS1_CA01:BPM_D1002:YPOS_RD"
			}},
	]
}

twin: {
	noise:       0
	grace:       "2s"
	retry_delay: "20ms"
}
`

const miniSettings = `LS1_CA01:Q_D1001:GRAD_CSET:
  VAL: 12.5
`

// writeFixture writes name with content into dir and returns its path.
func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func testCommand(ctx context.Context, stdout, stderr *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd
}
