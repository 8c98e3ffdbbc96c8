package lattice

// Element is one device in an ordered beamline layout.
//
// The interface is sealed: only the variant types declared in this file
// implement it. Consumers type-switch over the variants and treat the
// default branch as an unrecognized device.
type Element interface {
	// Attrs returns the geometry shared by every variant.
	Attrs() Base

	sealed()
}

// Base holds the attributes common to every element variant.
type Base struct {
	Name     string  `json:"name"`
	Length   float64 `json:"length"`   // m
	Aperture float64 `json:"aperture"` // full diameter, m
	Position float64 `json:"position"` // longitudinal centre, m
}

// Attrs implements Element.
func (b Base) Attrs() Base { return b }

func (Base) sealed() {}

// Triple names the three channels of one settable quantity.
type Triple struct {
	CSet string `json:"cset"` // commanded setpoint (read/write)
	RSet string `json:"rset"` // readback of the command
	Read string `json:"read"` // measured value
}

// Channels returns the triple as a slice in CSET, RSET, RD order.
func (t Triple) Channels() []string {
	return []string{t.CSet, t.RSet, t.Read}
}

// Drift is an empty beam pipe section.
type Drift struct{ Base }

// Valve is a gate valve; beam-dynamically a drift.
type Valve struct{ Base }

// Port is a pumping or diagnostic port; beam-dynamically a drift.
type Port struct{ Base }

// Cavity is an RF accelerating cavity.
type Cavity struct {
	Base
	Beta      float64 `json:"beta"`      // reference velocity fraction v/c
	Frequency float64 `json:"frequency"` // MHz
	Phase     Triple  `json:"phase"`     // deg
	Amplitude Triple  `json:"amplitude"` // a.u.
}

// SolenoidCorrector is a focusing solenoid with embedded horizontal and
// vertical dipole correctors. Only the solenoid channels are carried
// explicitly; the corrector channels are derived from Naming.
type SolenoidCorrector struct {
	Base
	Naming Naming `json:"naming"`
	Field  Triple `json:"field"` // T
}

// Horizontal returns the channel triple of the embedded horizontal corrector.
func (s SolenoidCorrector) Horizontal() Triple {
	return DeriveTriple(s.Naming, HorizontalCorrectorDevice, CorrectorField)
}

// Vertical returns the channel triple of the embedded vertical corrector.
func (s SolenoidCorrector) Vertical() Triple {
	return DeriveTriple(s.Naming, VerticalCorrectorDevice, CorrectorField)
}

// Quadrupole is a magnetic quadrupole.
type Quadrupole struct {
	Base
	Gradient Triple `json:"gradient"` // T/m
}

// Corrector is a stand-alone horizontal/vertical dipole corrector pair.
type Corrector struct {
	Base
	Horizontal Triple `json:"horizontal"` // rad
	Vertical   Triple `json:"vertical"`   // rad
}

// Bend is a dipole bending magnet. Its settings are not modelled yet.
type Bend struct{ Base }

// Hexapole is a sextupole magnet. Its settings are not modelled yet.
type Hexapole struct{ Base }

// Stripper is a charge-stripper foil or film.
type Stripper struct{ Base }

// LossMonitor is a beam loss monitor (BLM).
type LossMonitor struct {
	Base
	Loss string `json:"loss"`
}

// ProfileMonitor is a beam profile monitor (PM).
type ProfileMonitor struct {
	Base
	XRMS string `json:"xrms"`
	YRMS string `json:"yrms"`
}

// BunchLengthMonitor is a bunch length monitor (BL).
type BunchLengthMonitor struct {
	Base
	Width string `json:"width"`
}

// CurrentMonitor is a beam current monitor (BCM).
type CurrentMonitor struct {
	Base
	Current string `json:"current"`
}

// PositionMonitor is a beam position monitor (BPM). It is the only
// element that produces solver output rows.
type PositionMonitor struct {
	Base
	X      string `json:"x"`      // mm
	Y      string `json:"y"`      // mm
	Phase  string `json:"phase"`  // deg
	Energy string `json:"energy"` // MeV
}

// Kind returns the short lowercase name of an element variant, or "" for
// a type outside the closed set.
func Kind(e Element) string {
	switch e.(type) {
	case Drift:
		return "drift"
	case Valve:
		return "valve"
	case Port:
		return "port"
	case Cavity:
		return "cavity"
	case SolenoidCorrector:
		return "solenoid"
	case Quadrupole:
		return "quadrupole"
	case Corrector:
		return "corrector"
	case Bend:
		return "bend"
	case Hexapole:
		return "hexapole"
	case Stripper:
		return "stripper"
	case LossMonitor:
		return "blm"
	case ProfileMonitor:
		return "pm"
	case BunchLengthMonitor:
		return "bl"
	case CurrentMonitor:
		return "bcm"
	case PositionMonitor:
		return "bpm"
	default:
		return ""
	}
}
