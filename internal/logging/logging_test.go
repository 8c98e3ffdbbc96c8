package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelFromVerbose(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Writer: &buf})
	log.Debug("hidden")
	log.Info("shown", "cycle", 3)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
	assert.Contains(t, buf.String(), "cycle=3")

	buf.Reset()
	log = New(Options{Writer: &buf, Verbose: true})
	log.Debug("now shown")
	assert.Contains(t, buf.String(), "now shown")
}

func TestJournalKey(t *testing.T) {
	assert.Equal(t, "RUN_ID", journalKey("run_id"))
	assert.Equal(t, "DECK_HASH", journalKey("deck.hash"))
	assert.Equal(t, "CYCLE2", journalKey("cycle2"))
}

func TestOpenProcessLog_MirrorsBase(t *testing.T) {
	var buf bytes.Buffer
	base := New(Options{Writer: &buf})

	path := filepath.Join(t.TempDir(), "vacc.log")
	pl, err := OpenProcessLog(base, path)
	require.NoError(t, err)

	pl.Debug("debug only in file", "seq", 1)
	pl.Info("cycle complete", "seq", 2)
	require.NoError(t, pl.Close())
	assert.Equal(t, path, pl.Path())

	assert.Contains(t, buf.String(), "cycle complete")
	assert.NotContains(t, buf.String(), "debug only in file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, "cycle complete", rec["msg"])
	assert.Equal(t, float64(2), rec["seq"])
}

func TestOpenProcessLog_BadPath(t *testing.T) {
	_, err := OpenProcessLog(Discard(), filepath.Join(t.TempDir(), "missing", "vacc.log"))
	require.Error(t, err)
}
