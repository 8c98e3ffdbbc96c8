package deck

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vacc/internal/lattice"
)

func renderFor(t *testing.T, elements []lattice.Element, s lattice.Settings) string {
	t.Helper()
	d, err := newTestBuilder(t).Build(elements, s)
	require.NoError(t, err)
	text, err := Render(testHeader, d.Records)
	require.NoError(t, err)
	return text
}

func TestExtract_DriftAndQuadScenario(t *testing.T) {
	elements := []lattice.Element{
		lattice.Drift{Base: lattice.Base{Name: "D1", Length: 1.0, Aperture: 0.04}},
		lattice.Quadrupole{
			Base:     lattice.Base{Name: "Q1", Length: 0.2, Aperture: 0.02},
			Gradient: lattice.Triple{CSet: "Q1:GRAD_CSET", RSet: "Q1:GRAD_RSET", Read: "Q1:GRAD_RD"},
		},
	}
	text := renderFor(t, elements, lattice.Settings{"Q1:GRAD_CSET": {VAL: 5.0}})

	got, err := Extract(elements, strings.NewReader(text))
	require.NoError(t, err)
	assert.Equal(t, lattice.Settings{
		"Q1:GRAD_CSET": {VAL: 5.0},
		"Q1:GRAD_RSET": {VAL: 5.0},
		"Q1:GRAD_RD":   {VAL: 5.0},
	}, got)
}

func TestExtract_RoundTripLaw(t *testing.T) {
	elements := fullLayout()
	s := fullSettings()

	got, err := Extract(elements, strings.NewReader(renderFor(t, elements, s)))
	require.NoError(t, err)

	// Every channel carried by a positive-type record comes back.
	for _, ch := range []string{"CAV1:AMP_CSET", "CAV1:PHA_CSET", "LS1_CA01:SOLR_D1131:B_CSET", "Q1:GRAD_CSET"} {
		want, _ := s.Lookup(ch)
		v, ok := got.Lookup(ch)
		require.True(t, ok, ch)
		assert.InDelta(t, want, v, 1e-12, ch)
	}

	// Paired channels are synthesized from the single deck value.
	assert.Equal(t, 12.5, got["Q1:GRAD_RSET"].VAL)
	assert.Equal(t, 12.5, got["Q1:GRAD_RD"].VAL)
	assert.Equal(t, -30.0, got["CAV1:PHA_RD"].VAL)

	// Kicker channels are seeded at zero.
	assert.Equal(t, 0.0, got["LS1_CA01:DCH_D1131:I_CSET"].VAL)
	assert.Equal(t, 0.0, got["DC1:H_CSET"].VAL)
}

func TestExtract_RoundTripArbitraryValues(t *testing.T) {
	elements := fullLayout()
	values := []float64{0, -1, 1e-9, 123456.789, -0.1 + 0.2, 3.141592653589793}

	for _, v := range values {
		s := lattice.Settings{
			"CAV1:AMP_CSET":              {VAL: v},
			"CAV1:PHA_CSET":              {VAL: -v},
			"LS1_CA01:SOLR_D1131:B_CSET": {VAL: v * 2},
			"Q1:GRAD_CSET":               {VAL: v / 3},
		}
		got, err := Extract(elements, strings.NewReader(renderFor(t, elements, s)))
		require.NoError(t, err)
		for ch, want := range s {
			assert.Equal(t, want.VAL, got[ch].VAL, "%s for %v", ch, v)
		}
	}
}

func TestExtract_SkipsCommentsAndShortRecords(t *testing.T) {
	elements := []lattice.Element{
		lattice.Quadrupole{Base: lattice.Base{Name: "Q1", Length: 0.2}, Gradient: triple("Q1:GRAD_CSET")},
	}
	text := renderFor(t, elements, lattice.Settings{"Q1:GRAD_CSET": {VAL: 2}})
	text = strings.Replace(text, "! Q1\r\n", "! Q1\r\n! hand edited\r\n1 2 /\r\n\r\n", 1)

	got, err := Extract(elements, strings.NewReader(text))
	require.NoError(t, err)
	assert.Equal(t, 2.0, got["Q1:GRAD_CSET"].VAL)
}

func TestExtract_TypeMismatch(t *testing.T) {
	built := []lattice.Element{
		lattice.Quadrupole{Base: lattice.Base{Name: "Q1", Length: 0.2}, Gradient: triple("Q1:GRAD_CSET")},
	}
	text := renderFor(t, built, lattice.Settings{"Q1:GRAD_CSET": {VAL: 2}})

	walked := []lattice.Element{
		lattice.Bend{Base: lattice.Base{Name: "B1", Length: 0.2}},
	}
	_, err := Extract(walked, strings.NewReader(text))
	require.Error(t, err)

	var me *MismatchError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "B1", me.Element)
	assert.Equal(t, 1+PreambleLines+2, me.Line, "banner + preamble + element comment + record")
	assert.Contains(t, me.Expected, "type 4")
	assert.Contains(t, me.Found, "type 1")
}

func TestExtract_LengthMismatch(t *testing.T) {
	q := lattice.Quadrupole{Base: lattice.Base{Name: "Q1", Length: 0.2}, Gradient: triple("Q1:GRAD_CSET")}
	text := renderFor(t, []lattice.Element{q}, nil)

	q.Length = 0.25
	_, err := Extract([]lattice.Element{q}, strings.NewReader(text))
	require.Error(t, err)
	assert.True(t, IsMismatchError(err))
	assert.Contains(t, err.Error(), "length 0.25")
	assert.Contains(t, err.Error(), "Q1")
}

func TestExtract_DeckEndsEarly(t *testing.T) {
	q1 := lattice.Quadrupole{Base: lattice.Base{Name: "Q1", Length: 0.2}, Gradient: triple("Q1:GRAD_CSET")}
	q2 := lattice.Quadrupole{Base: lattice.Base{Name: "Q2", Length: 0.2}, Gradient: triple("Q2:GRAD_CSET")}
	text := renderFor(t, []lattice.Element{q1}, nil)

	_, err := Extract([]lattice.Element{q1, q2}, strings.NewReader(text))
	require.Error(t, err)

	var me *MismatchError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, 0, me.Line)
	assert.Equal(t, "Q2", me.Element)
	assert.Contains(t, err.Error(), "end of deck")
}

func TestExtract_LeftoverRecords(t *testing.T) {
	q1 := lattice.Quadrupole{Base: lattice.Base{Name: "Q1", Length: 0.2}, Gradient: triple("Q1:GRAD_CSET")}
	q2 := lattice.Quadrupole{Base: lattice.Base{Name: "Q2", Length: 0.2}, Gradient: triple("Q2:GRAD_CSET")}
	text := renderFor(t, []lattice.Element{q1, q2}, nil)

	_, err := Extract([]lattice.Element{q1}, strings.NewReader(text))
	require.Error(t, err)
	assert.True(t, IsMismatchError(err))
	assert.Contains(t, err.Error(), "expected end of deck")
}

func TestExtract_NonNumericField(t *testing.T) {
	q := lattice.Quadrupole{Base: lattice.Base{Name: "Q1", Length: 0.2}, Gradient: triple("Q1:GRAD_CSET")}
	text := renderFor(t, []lattice.Element{q}, lattice.Settings{"Q1:GRAD_CSET": {VAL: 2}})
	text = strings.Replace(text, "0.2 50 20 1 2 0 0 /", "0.2 50 20 1 abc 0 0 /", 1)

	_, err := Extract([]lattice.Element{q}, strings.NewReader(text))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"abc" in field 5`)
}

func TestExtract_UnknownVariant(t *testing.T) {
	_, err := Extract([]lattice.Element{unknownElement{}}, strings.NewReader(""))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}
