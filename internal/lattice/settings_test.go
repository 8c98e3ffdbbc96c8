package lattice

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings_CloneIsIndependent(t *testing.T) {
	s := Settings{"Q1:GRAD_CSET": {VAL: 5}}
	c := s.Clone()
	c.Set("Q1:GRAD_CSET", 7)

	v, ok := s.Lookup("Q1:GRAD_CSET")
	require.True(t, ok)
	assert.Equal(t, 5.0, v)
}

func TestSettings_CloneNil(t *testing.T) {
	var s Settings
	c := s.Clone()
	require.NotNil(t, c)
	assert.Empty(t, c)
}

func TestReadSettings(t *testing.T) {
	doc := `
Q1:GRAD_CSET:
  VAL: 5.0
CAV1:PHA_CSET:
  VAL: -30
`
	s, err := ReadSettings(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, Settings{
		"Q1:GRAD_CSET":  {VAL: 5},
		"CAV1:PHA_CSET": {VAL: -30},
	}, s)
}

func TestReadSettings_Empty(t *testing.T) {
	s, err := ReadSettings(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestReadSettings_Invalid(t *testing.T) {
	_, err := ReadSettings(strings.NewReader("- not\n- a map\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode settings")
}

func TestWriteSettings_SortedAndReadable(t *testing.T) {
	s := Settings{
		"Q2:GRAD_CSET": {VAL: -1.25},
		"Q1:GRAD_CSET": {VAL: 5},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteSettings(&buf, s))

	out := buf.String()
	assert.Less(t, strings.Index(out, "Q1:GRAD_CSET"), strings.Index(out, "Q2:GRAD_CSET"))

	back, err := ReadSettings(&buf)
	require.NoError(t, err)
	assert.Equal(t, s, back)
}
