package deck

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/vacc/internal/lattice"
)

// Integrator selects the solver's particle pusher.
type Integrator int

const (
	// LinearMap integrates with transfer maps.
	LinearMap Integrator = 1
	// Lorentz integrates the Lorentz force through field maps.
	Lorentz Integrator = 2
)

// Validate returns a *ConfigError for unsupported integrators.
func (i Integrator) Validate() error {
	switch i {
	case LinearMap, Lorentz:
		return nil
	default:
		return &ConfigError{Index: -1, Message: fmt.Sprintf("unsupported integrator %d (want %d or %d)", int(i), LinearMap, Lorentz)}
	}
}

func (i Integrator) String() string {
	switch i {
	case LinearMap:
		return "linear-map"
	case Lorentz:
		return "lorentz"
	default:
		return "integrator(" + strconv.Itoa(int(i)) + ")"
	}
}

// Location ties a channel to the deck record that carries it.
type Location struct {
	Z     float64 `json:"z"`     // element position, m
	Index int     `json:"index"` // record index in Deck.Records
}

// Mapping relates channel identifiers to deck records.
type Mapping map[string]Location

// Deck is the result of one Build.
//
// Outputs lists the elements owning the output records, in record order.
// Row i of every solver result file belongs to Outputs[i].
//
// Missing lists the referenced channels that were absent from the settings
// and were substituted with 0.0, sorted and without duplicates.
type Deck struct {
	Records   []Record
	Setpoints Mapping
	Readbacks Mapping
	Outputs   []lattice.Element
	Missing   []string
}

// Builder turns an element list and a settings map into deck records.
// A Builder is immutable and safe for concurrent use.
type Builder struct {
	integrator Integrator
}

// NewBuilder returns a Builder for the given integrator.
// Unsupported integrators are a *ConfigError.
func NewBuilder(integrator Integrator) (*Builder, error) {
	if err := integrator.Validate(); err != nil {
		return nil, err
	}
	return &Builder{integrator: integrator}, nil
}

// Build emits the deck records for elements in layout order, substituting
// live values from settings.
//
// A channel absent from settings contributes 0.0 and is reported in
// Deck.Missing; it is never an error. An element outside the closed
// variant set is a *ConfigError and no deck is returned.
func (b *Builder) Build(elements []lattice.Element, settings lattice.Settings) (*Deck, error) {
	w := &writer{
		settings: settings,
		missing:  make(map[string]struct{}),
		deck: &Deck{
			Setpoints: make(Mapping),
			Readbacks: make(Mapping),
		},
	}

	for i, el := range elements {
		if err := b.emit(w, el); err != nil {
			if ce, ok := err.(*ConfigError); ok {
				ce.Index = i
				if el != nil {
					ce.Element = el.Attrs().Name
				}
			}
			return nil, err
		}
	}

	w.deck.Missing = slices.Sorted(maps.Keys(w.missing))
	return w.deck, nil
}

// emit appends the records for one element.
func (b *Builder) emit(w *writer, el lattice.Element) error {
	switch e := el.(type) {
	case lattice.Drift:
		w.add(driftRecord(e.Name, e.Length, e.Aperture))
	case lattice.Valve:
		w.add(driftRecord(e.Name, e.Length, e.Aperture))
	case lattice.Port:
		w.add(driftRecord(e.Name, e.Length, e.Aperture))

	case lattice.Cavity:
		fileID, err := CavityFileID(e.Beta, b.integrator)
		if err != nil {
			return err
		}
		amp := w.value(e.Amplitude.CSet)
		phase := w.value(e.Phase.CSet)
		idx := w.add(cavityRecord(e.Name, e.Length, amp, e.Frequency*1e6, phase, fileID, e.Aperture))
		w.setpoint(e.Amplitude.CSet, e.Position, idx)
		w.setpoint(e.Phase.CSet, e.Position, idx)

	case lattice.SolenoidCorrector:
		h, v := e.Horizontal(), e.Vertical()
		field := w.value(e.Field.CSet)
		hkick := w.value(h.CSet)
		vkick := w.value(v.CSet)
		first := w.add(solenoidRecord(e.Name, e.Length/2, field, e.Aperture))
		kick := w.add(kickerRecord(e.Name, e.Aperture, hkick, vkick))
		w.add(solenoidRecord(e.Name, e.Length/2, field, e.Aperture))
		w.setpoint(e.Field.CSet, e.Position, first)
		w.setpoint(h.CSet, e.Position, kick)
		w.setpoint(v.CSet, e.Position, kick)

	case lattice.Quadrupole:
		gradient := w.value(e.Gradient.CSet)
		idx := w.add(quadRecord(e.Name, e.Length, gradient, e.Aperture))
		w.setpoint(e.Gradient.CSet, e.Position, idx)

	case lattice.Corrector:
		hkick := w.value(e.Horizontal.CSet)
		vkick := w.value(e.Vertical.CSet)
		if e.Length != 0 {
			w.add(driftRecord(e.Name, e.Length/2, e.Aperture))
		}
		kick := w.add(kickerRecord(e.Name, e.Aperture, hkick, vkick))
		if e.Length != 0 {
			w.add(driftRecord(e.Name, e.Length/2, e.Aperture))
		}
		w.setpoint(e.Horizontal.CSet, e.Position, kick)
		w.setpoint(e.Vertical.CSet, e.Position, kick)

	case lattice.Bend:
		w.add(bendRecord(e.Name, e.Length, e.Aperture))
	case lattice.Hexapole:
		w.add(hexapoleRecord(e.Name, e.Length, e.Aperture))

	case lattice.Stripper:
		w.addDriftIfLong(e.Base)
	case lattice.LossMonitor:
		w.addDriftIfLong(e.Base)
	case lattice.ProfileMonitor:
		w.addDriftIfLong(e.Base)
	case lattice.BunchLengthMonitor:
		w.addDriftIfLong(e.Base)
	case lattice.CurrentMonitor:
		w.addDriftIfLong(e.Base)

	case lattice.PositionMonitor:
		w.add(driftRecord(e.Name, e.Length/2, e.Aperture))
		idx := w.add(outputRecord(e.Name, e.Aperture))
		w.deck.Outputs = append(w.deck.Outputs, e)
		for _, ch := range []string{e.X, e.Y, e.Phase, e.Energy} {
			if ch != "" {
				w.deck.Readbacks[ch] = Location{Z: e.Position, Index: idx}
			}
		}
		w.add(driftRecord(e.Name, e.Length/2, e.Aperture))

	default:
		return &ConfigError{Message: fmt.Sprintf("unrecognized element type %T", el)}
	}
	return nil
}

// CavityFileID returns the field map file number for a cavity.
//
// The reference velocity fraction is normalized to three decimals and
// combined with the integrator: beta 0.041 with LinearMap gives 1041,
// with Lorentz 2041.
func CavityFileID(beta float64, integrator Integrator) (int, error) {
	if err := integrator.Validate(); err != nil {
		return 0, err
	}
	norm := strconv.FormatFloat(beta, 'f', 3, 64)
	digits, ok := strings.CutPrefix(norm, "0.")
	if !ok {
		return 0, &ConfigError{Index: -1, Message: fmt.Sprintf("cavity beta %v outside (0, 1)", beta)}
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n == 0 {
		return 0, &ConfigError{Index: -1, Message: fmt.Sprintf("cavity beta %v outside (0, 1)", beta)}
	}
	return 1000*int(integrator) + n, nil
}

// writer accumulates records for one Build call.
type writer struct {
	settings lattice.Settings
	missing  map[string]struct{}
	deck     *Deck
}

func (w *writer) add(r Record) int {
	w.deck.Records = append(w.deck.Records, r)
	return len(w.deck.Records) - 1
}

func (w *writer) addDriftIfLong(b lattice.Base) {
	if b.Length != 0 {
		w.add(driftRecord(b.Name, b.Length, b.Aperture))
	}
}

func (w *writer) setpoint(channel string, z float64, idx int) {
	if channel == "" {
		return
	}
	w.deck.Setpoints[channel] = Location{Z: z, Index: idx}
}

// value looks up a channel, recording it as missing and returning 0.0 when
// absent.
func (w *writer) value(channel string) float64 {
	if channel == "" {
		return 0
	}
	if v, ok := w.settings.Lookup(channel); ok {
		return v
	}
	w.missing[channel] = struct{}{}
	return 0
}
