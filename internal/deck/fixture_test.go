package deck

import "github.com/roach88/vacc/internal/lattice"

func triple(cset string) lattice.Triple {
	rset, _ := lattice.PairedChannel(cset, lattice.SuffixRSet)
	rd, _ := lattice.PairedChannel(cset, lattice.SuffixRead)
	return lattice.Triple{CSet: cset, RSet: rset, Read: rd}
}

var solNaming = lattice.Naming{System: "LS1", Subsystem: "CA01", Device: "SOLR", Index: "D1131"}

// fullLayout exercises every element variant once, plus a zero-length
// corrector and a zero-length BPM.
func fullLayout() []lattice.Element {
	return []lattice.Element{
		lattice.Drift{Base: lattice.Base{Name: "D1", Length: 0.5, Aperture: 0.04, Position: 0.25}},
		lattice.Valve{Base: lattice.Base{Name: "GV1", Length: 0.1, Aperture: 0.04, Position: 0.55}},
		lattice.Port{Base: lattice.Base{Name: "PT1", Length: 0.05, Aperture: 0.04, Position: 0.625}},
		lattice.Cavity{
			Base:      lattice.Base{Name: "CAV1", Length: 0.24, Aperture: 0.03, Position: 0.77},
			Beta:      0.041,
			Frequency: 80.5,
			Phase:     triple("CAV1:PHA_CSET"),
			Amplitude: triple("CAV1:AMP_CSET"),
		},
		lattice.SolenoidCorrector{
			Base:   lattice.Base{Name: "SOL1", Length: 0.2, Aperture: 0.04, Position: 1.0},
			Naming: solNaming,
			Field:  lattice.DeriveTriple(solNaming, "", "B"),
		},
		lattice.Quadrupole{
			Base:     lattice.Base{Name: "Q1", Length: 0.2, Aperture: 0.02, Position: 1.2},
			Gradient: triple("Q1:GRAD_CSET"),
		},
		lattice.Corrector{
			Base:       lattice.Base{Name: "DC1", Length: 0.1, Aperture: 0.04, Position: 1.35},
			Horizontal: triple("DC1:H_CSET"),
			Vertical:   triple("DC1:V_CSET"),
		},
		lattice.Corrector{
			Base:       lattice.Base{Name: "DC2", Length: 0, Aperture: 0.04, Position: 1.4},
			Horizontal: triple("DC2:H_CSET"),
			Vertical:   triple("DC2:V_CSET"),
		},
		lattice.Bend{Base: lattice.Base{Name: "B1", Length: 0.5, Aperture: 0.05, Position: 1.65}},
		lattice.Hexapole{Base: lattice.Base{Name: "HX1", Length: 0.1, Aperture: 0.05, Position: 1.95}},
		lattice.Stripper{Base: lattice.Base{Name: "STR1", Length: 0, Aperture: 0.04, Position: 2.0}},
		lattice.LossMonitor{Base: lattice.Base{Name: "BLM1", Aperture: 0.04, Position: 2.0}, Loss: "BLM1:LOSS_RD"},
		lattice.ProfileMonitor{Base: lattice.Base{Name: "PM1", Length: 0.02, Aperture: 0.04, Position: 2.01}, XRMS: "PM1:XRMS_RD", YRMS: "PM1:YRMS_RD"},
		lattice.BunchLengthMonitor{Base: lattice.Base{Name: "BL1", Aperture: 0.04, Position: 2.02}, Width: "BL1:WIDTH_RD"},
		lattice.CurrentMonitor{Base: lattice.Base{Name: "BCM1", Length: 0.05, Aperture: 0.04, Position: 2.045}, Current: "BCM1:CUR_RD"},
		lattice.PositionMonitor{
			Base:   lattice.Base{Name: "BPM1", Length: 0.1, Aperture: 0.04, Position: 2.12},
			X:      "BPM1:X_RD",
			Y:      "BPM1:Y_RD",
			Phase:  "BPM1:PHASE_RD",
			Energy: "BPM1:ENERGY_RD",
		},
		lattice.PositionMonitor{
			Base:   lattice.Base{Name: "BPM2", Length: 0, Aperture: 0.04, Position: 2.2},
			X:      "BPM2:X_RD",
			Y:      "BPM2:Y_RD",
			Phase:  "BPM2:PHASE_RD",
			Energy: "BPM2:ENERGY_RD",
		},
	}
}

// fullSettings populates every settable channel of fullLayout except the
// vertical kick of DC1 and both kicks of DC2.
func fullSettings() lattice.Settings {
	h := lattice.DeriveTriple(solNaming, lattice.HorizontalCorrectorDevice, lattice.CorrectorField)
	v := lattice.DeriveTriple(solNaming, lattice.VerticalCorrectorDevice, lattice.CorrectorField)
	return lattice.Settings{
		"CAV1:AMP_CSET":              {VAL: 0.5},
		"CAV1:PHA_CSET":              {VAL: -30},
		"LS1_CA01:SOLR_D1131:B_CSET": {VAL: 5.1},
		h.CSet:                       {VAL: 0.001},
		v.CSet:                       {VAL: -0.002},
		"Q1:GRAD_CSET":               {VAL: 12.5},
		"DC1:H_CSET":                 {VAL: 0.0005},
	}
}
