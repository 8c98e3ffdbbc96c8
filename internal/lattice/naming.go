package lattice

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Channel suffixes of a settable quantity.
const (
	SuffixCSet = "CSET"
	SuffixRSet = "RSET"
	SuffixRead = "RD"
)

// Devices and field used for correctors embedded in a solenoid.
const (
	HorizontalCorrectorDevice = "DCH"
	VerticalCorrectorDevice   = "DCV"
	CorrectorField            = "I"
)

// Naming holds the structured naming fields of a device, e.g.
// System "LS1", Subsystem "CA01", Device "SOLR", Index "D1131".
type Naming struct {
	System    string `json:"system"`
	Subsystem string `json:"subsystem"`
	Device    string `json:"device"`
	Index     string `json:"index"`
}

// Validate reports whether every naming field is set and free of the
// separators used by DeriveChannel.
func (n Naming) Validate() error {
	parts := []struct {
		field, value string
	}{
		{"system", n.System},
		{"subsystem", n.Subsystem},
		{"device", n.Device},
		{"index", n.Index},
	}
	for _, p := range parts {
		if strings.TrimSpace(p.value) == "" {
			return fmt.Errorf("naming: %s is empty", p.field)
		}
		if strings.ContainsAny(p.value, ": \t") {
			return fmt.Errorf("naming: %s %q contains a separator", p.field, p.value)
		}
	}
	return nil
}

// DeriveChannel builds the channel identifier of field/suffix on a device
// that shares n's system, subsystem and index:
//
//	<System>_<Subsystem>:<Device>_<Index>:<Field>_<Suffix>
//
// The device argument replaces n.Device when non-empty. The result is NFC
// normalized so identifiers derived from differently composed input
// compare equal.
func DeriveChannel(n Naming, device, field, suffix string) string {
	if device == "" {
		device = n.Device
	}
	id := n.System + "_" + n.Subsystem + ":" + device + "_" + n.Index + ":" + field + "_" + suffix
	return norm.NFC.String(id)
}

// DeriveTriple returns the CSET/RSET/RD triple of field on device.
func DeriveTriple(n Naming, device, field string) Triple {
	return Triple{
		CSet: DeriveChannel(n, device, field, SuffixCSet),
		RSet: DeriveChannel(n, device, field, SuffixRSet),
		Read: DeriveChannel(n, device, field, SuffixRead),
	}
}

// PairedChannel rewrites the trailing _CSET of a command channel to the
// given suffix. ok is false when cset does not end in _CSET.
func PairedChannel(cset, suffix string) (string, bool) {
	base, found := strings.CutSuffix(cset, "_"+SuffixCSet)
	if !found || base == "" {
		return "", false
	}
	return base + "_" + suffix, true
}
