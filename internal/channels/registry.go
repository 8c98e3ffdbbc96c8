package channels

import (
	"fmt"
	"slices"

	"github.com/roach88/vacc/internal/lattice"
)

// Kind is the access mode of a channel.
type Kind int

const (
	// ReadOnly channels are published by the twin only.
	ReadOnly Kind = iota + 1
	// ReadWrite channels accept client writes.
	ReadWrite
)

// String returns the lowercase name of the access mode.
func (k Kind) String() string {
	switch k {
	case ReadOnly:
		return "ro"
	case ReadWrite:
		return "rw"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Definition describes one published channel.
type Definition struct {
	Name        string `json:"name" yaml:"name"`
	Kind        Kind   `json:"kind" yaml:"kind"`
	Element     string `json:"element" yaml:"element"`
	Description string `json:"description" yaml:"description"`
	Unit        string `json:"unit,omitempty" yaml:"unit,omitempty"`
	Precision   int    `json:"precision" yaml:"precision"`
}

// Writable reports whether clients may write the channel.
func (d Definition) Writable() bool { return d.Kind == ReadWrite }

// Pair names the read-only companions of a write channel.
type Pair struct {
	Readback string // RSET: echo of the accepted setpoint
	Monitor  string // RD: simulated measurement
}

// Registry is the channel table of one layout.
type Registry struct {
	defs    []Definition
	index   map[string]int
	pairs   map[string]Pair
	outputs []lattice.Element
}

// quantity is one settable field of an element.
type quantity struct {
	triple    lattice.Triple
	label     string
	unit      string
	precision int
}

// monitor is one measured field of a diagnostic element.
type monitor struct {
	channel   string
	label     string
	unit      string
	precision int
}

// NewRegistry derives the channel table of elements.
//
// Each settable quantity yields a read/write CSET and read-only RSET and RD
// definitions; each monitor quantity yields one read-only definition.
// Channel names must be unique across the layout.
func NewRegistry(elements []lattice.Element) (*Registry, error) {
	r := &Registry{
		index: make(map[string]int),
		pairs: make(map[string]Pair),
	}

	for i, el := range elements {
		if el == nil {
			return nil, fmt.Errorf("element %d: nil element", i)
		}
		name := el.Attrs().Name

		var (
			qs []quantity
			ms []monitor
		)
		switch e := el.(type) {
		case lattice.Drift, lattice.Valve, lattice.Port, lattice.Bend,
			lattice.Hexapole, lattice.Stripper:
		case lattice.Cavity:
			qs = []quantity{
				{e.Phase, "RF phase", "deg", 2},
				{e.Amplitude, "RF amplitude", "", 4},
			}
		case lattice.SolenoidCorrector:
			qs = []quantity{
				{e.Field, "solenoid field", "T", 4},
				{e.Horizontal(), "horizontal corrector current", "A", 3},
				{e.Vertical(), "vertical corrector current", "A", 3},
			}
		case lattice.Quadrupole:
			qs = []quantity{{e.Gradient, "quadrupole gradient", "T/m", 4}}
		case lattice.Corrector:
			qs = []quantity{
				{e.Horizontal, "horizontal kick", "rad", 6},
				{e.Vertical, "vertical kick", "rad", 6},
			}
		case lattice.LossMonitor:
			ms = []monitor{{e.Loss, "beam loss", "", 3}}
		case lattice.ProfileMonitor:
			ms = []monitor{
				{e.XRMS, "horizontal rms size", "mm", 3},
				{e.YRMS, "vertical rms size", "mm", 3},
			}
		case lattice.BunchLengthMonitor:
			ms = []monitor{{e.Width, "bunch length", "deg", 3}}
		case lattice.CurrentMonitor:
			ms = []monitor{{e.Current, "beam current", "mA", 3}}
		case lattice.PositionMonitor:
			ms = []monitor{
				{e.X, "horizontal position", "mm", 3},
				{e.Y, "vertical position", "mm", 3},
				{e.Phase, "beam phase", "deg", 2},
				{e.Energy, "beam energy", "MeV", 4},
			}
			r.outputs = append(r.outputs, el)
		default:
			return nil, fmt.Errorf("element %d (%s): unrecognized element type %T", i, name, el)
		}

		for _, q := range qs {
			if err := r.addQuantity(name, q); err != nil {
				return nil, fmt.Errorf("element %d (%s): %w", i, name, err)
			}
		}
		for _, m := range ms {
			if m.channel == "" {
				continue
			}
			def := Definition{
				Name:        m.channel,
				Kind:        ReadOnly,
				Element:     name,
				Description: m.label,
				Unit:        m.unit,
				Precision:   m.precision,
			}
			if err := r.add(def); err != nil {
				return nil, fmt.Errorf("element %d (%s): %w", i, name, err)
			}
		}
	}
	return r, nil
}

func (r *Registry) addQuantity(element string, q quantity) error {
	t := q.triple
	if t.CSet == "" && t.RSet == "" && t.Read == "" {
		return nil
	}
	if t.CSet == "" || t.RSet == "" || t.Read == "" {
		return fmt.Errorf("%s: incomplete channel triple %+v", q.label, t)
	}

	defs := []Definition{
		{Name: t.CSet, Kind: ReadWrite, Description: q.label + " setpoint"},
		{Name: t.RSet, Kind: ReadOnly, Description: q.label + " setpoint readback"},
		{Name: t.Read, Kind: ReadOnly, Description: q.label + " readback"},
	}
	for _, d := range defs {
		d.Element = element
		d.Unit = q.unit
		d.Precision = q.precision
		if err := r.add(d); err != nil {
			return err
		}
	}
	r.pairs[t.CSet] = Pair{Readback: t.RSet, Monitor: t.Read}
	return nil
}

func (r *Registry) add(d Definition) error {
	if _, dup := r.index[d.Name]; dup {
		return fmt.Errorf("duplicate channel %q", d.Name)
	}
	r.index[d.Name] = len(r.defs)
	r.defs = append(r.defs, d)
	return nil
}

// Definitions returns every channel definition in layout order.
func (r *Registry) Definitions() []Definition {
	return slices.Clone(r.defs)
}

// Definition returns the definition of name.
func (r *Registry) Definition(name string) (Definition, bool) {
	i, ok := r.index[name]
	if !ok {
		return Definition{}, false
	}
	return r.defs[i], true
}

// Pairs returns the write channel to readback/monitor table.
func (r *Registry) Pairs() map[string]Pair {
	out := make(map[string]Pair, len(r.pairs))
	for k, v := range r.pairs {
		out[k] = v
	}
	return out
}

// Pair returns the companions of write channel cset.
func (r *Registry) Pair(cset string) (Pair, bool) {
	p, ok := r.pairs[cset]
	return p, ok
}

// WriteChannels returns the read/write channel names, sorted.
func (r *Registry) WriteChannels() []string {
	out := make([]string, 0, len(r.pairs))
	for k := range r.pairs {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Outputs returns the elements that own solver output rows, in layout
// order. Row i of every result file belongs to Outputs()[i].
func (r *Registry) Outputs() []lattice.Element {
	return slices.Clone(r.outputs)
}

// Len returns the number of channels.
func (r *Registry) Len() int { return len(r.defs) }
