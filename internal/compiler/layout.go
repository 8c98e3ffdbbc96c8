package compiler

import (
	"fmt"
	"maps"
	"slices"

	"cuelang.org/go/cue"

	"github.com/roach88/vacc/internal/lattice"
)

// Layout is a compiled beamline.
type Layout struct {
	Name     string
	Elements []lattice.Element
}

type elementSpec struct {
	Kind      string            `json:"kind"`
	Name      string            `json:"name"`
	Length    float64           `json:"length"`
	Aperture  float64           `json:"aperture"`
	Position  *float64          `json:"position"`
	Beta      float64           `json:"beta"`
	Frequency float64           `json:"frequency"`
	Naming    *lattice.Naming   `json:"naming"`
	Channels  map[string]string `json:"channels"`
}

// CompileLayout reads the `layout` struct of v into lattice elements.
//
// Each element is checked against the embedded #Layout schema. Settable
// quantities are given as <quantity>_cset channels; the _rset and _rd
// companions default to the cset name with its suffix replaced. An
// element without an explicit position is centred on the running sum of
// the preceding lengths.
//
//	layout: {
//		name: "fe"
//		elements: [
//			{kind: "drift", name: "D1", length: 0.1, aperture: 0.04},
//			{kind: "quadrupole", name: "Q1", length: 0.2, aperture: 0.04,
//				channels: gradient_cset: "FE_MEBT:Q_D1013:GRAD_CSET"},
//		]
//	}
func CompileLayout(v cue.Value) (*Layout, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	lv := v.LookupPath(cue.ParsePath("layout"))
	if !lv.Exists() {
		return nil, &CompileError{
			Field:   "layout",
			Message: "layout is required",
			Pos:     v.Pos(),
		}
	}

	def, err := schema(v, "#Layout")
	if err != nil {
		return nil, err
	}
	u := def.Unify(lv)
	if err := u.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	layout := &Layout{}
	if nv := u.LookupPath(cue.ParsePath("name")); nv.Exists() {
		if layout.Name, err = nv.String(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	iter, err := u.LookupPath(cue.ParsePath("elements")).List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	seen := make(map[string]int)
	z := 0.0
	for i := 0; iter.Next(); i++ {
		field := fmt.Sprintf("layout.elements[%d]", i)
		pos := lv.LookupPath(cue.MakePath(cue.Str("elements"), cue.Index(i))).Pos()

		var spec elementSpec
		if err := iter.Value().Decode(&spec); err != nil {
			return nil, formatCUEError(err)
		}
		if j, dup := seen[spec.Name]; dup {
			return nil, &CompileError{
				Field:   field,
				Message: fmt.Sprintf("duplicate element name %q (first at index %d)", spec.Name, j),
				Pos:     pos,
			}
		}
		seen[spec.Name] = i

		el, err := compileElement(spec, z)
		if err != nil {
			return nil, &CompileError{
				Field:   field,
				Message: fmt.Sprintf("%s %s: %v", spec.Kind, spec.Name, err),
				Pos:     pos,
			}
		}
		layout.Elements = append(layout.Elements, el)
		z += spec.Length
	}

	if len(layout.Elements) == 0 {
		return nil, &CompileError{
			Field:   "layout.elements",
			Message: "at least one element is required",
			Pos:     lv.Pos(),
		}
	}
	return layout, nil
}

func compileElement(spec elementSpec, start float64) (lattice.Element, error) {
	base := lattice.Base{
		Name:     spec.Name,
		Length:   spec.Length,
		Aperture: spec.Aperture,
		Position: start + spec.Length/2,
	}
	if spec.Position != nil {
		base.Position = *spec.Position
	}
	if spec.Naming != nil && spec.Kind != "solenoid" {
		return nil, fmt.Errorf("naming applies to solenoids only")
	}

	ch := newChannelSet(spec.Channels)
	var el lattice.Element
	switch spec.Kind {
	case "drift":
		el = lattice.Drift{Base: base}
	case "valve":
		el = lattice.Valve{Base: base}
	case "port":
		el = lattice.Port{Base: base}
	case "bend":
		el = lattice.Bend{Base: base}
	case "hexapole":
		el = lattice.Hexapole{Base: base}
	case "stripper":
		el = lattice.Stripper{Base: base}
	case "cavity":
		if spec.Beta == 0 || spec.Frequency == 0 {
			return nil, fmt.Errorf("beta and frequency are required")
		}
		el = lattice.Cavity{
			Base:      base,
			Beta:      spec.Beta,
			Frequency: spec.Frequency,
			Phase:     ch.triple("phase"),
			Amplitude: ch.triple("amplitude"),
		}
	case "solenoid":
		if spec.Naming == nil {
			return nil, fmt.Errorf("naming is required to derive the corrector channels")
		}
		el = lattice.SolenoidCorrector{
			Base:   base,
			Naming: *spec.Naming,
			Field:  ch.triple("field"),
		}
	case "quadrupole":
		el = lattice.Quadrupole{Base: base, Gradient: ch.triple("gradient")}
	case "corrector":
		el = lattice.Corrector{
			Base:       base,
			Horizontal: ch.triple("horizontal"),
			Vertical:   ch.triple("vertical"),
		}
	case "blm":
		el = lattice.LossMonitor{Base: base, Loss: ch.single("loss")}
	case "pm":
		el = lattice.ProfileMonitor{Base: base, XRMS: ch.single("xrms"), YRMS: ch.single("yrms")}
	case "bl":
		el = lattice.BunchLengthMonitor{Base: base, Width: ch.single("width")}
	case "bcm":
		el = lattice.CurrentMonitor{Base: base, Current: ch.single("current")}
	case "bpm":
		el = lattice.PositionMonitor{
			Base:   base,
			X:      ch.single("x"),
			Y:      ch.single("y"),
			Phase:  ch.single("phase"),
			Energy: ch.single("energy"),
		}
	default:
		return nil, fmt.Errorf("unknown kind %q", spec.Kind)
	}
	if err := ch.finish(); err != nil {
		return nil, err
	}
	return el, nil
}

// channelSet hands out the channels map of one element and remembers
// which keys were consumed.
type channelSet struct {
	m    map[string]string
	used map[string]bool
	err  error
}

func newChannelSet(m map[string]string) *channelSet {
	return &channelSet{m: m, used: make(map[string]bool)}
}

func (c *channelSet) single(key string) string {
	c.used[key] = true
	return c.m[key]
}

func (c *channelSet) triple(quantity string) lattice.Triple {
	cset := c.single(quantity + "_cset")
	rset := c.single(quantity + "_rset")
	rd := c.single(quantity + "_rd")

	if cset == "" {
		if (rset != "" || rd != "") && c.err == nil {
			c.err = fmt.Errorf("%s_cset is required when %s_rset or %s_rd is set", quantity, quantity, quantity)
		}
		return lattice.Triple{}
	}

	derive := func(given, suffix string) string {
		if given != "" {
			return given
		}
		name, ok := lattice.PairedChannel(cset, suffix)
		if !ok && c.err == nil {
			c.err = fmt.Errorf("%s_cset %q does not end in _%s; give %s_%s explicitly",
				quantity, cset, lattice.SuffixCSet, quantity, suffixKey(suffix))
		}
		return name
	}
	return lattice.Triple{
		CSet: cset,
		RSet: derive(rset, lattice.SuffixRSet),
		Read: derive(rd, lattice.SuffixRead),
	}
}

func suffixKey(suffix string) string {
	if suffix == lattice.SuffixRSet {
		return "rset"
	}
	return "rd"
}

func (c *channelSet) finish() error {
	if c.err != nil {
		return c.err
	}
	for _, key := range slices.Sorted(maps.Keys(c.m)) {
		if !c.used[key] {
			return fmt.Errorf("unknown channel key %q", key)
		}
	}
	return nil
}
