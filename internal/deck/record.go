package deck

import (
	"strconv"
	"strings"
)

// Element type codes, field 4 of every record.
const (
	TypeDrift    = 0
	TypeQuad     = 1
	TypeSolenoid = 3
	TypeBend     = 4
	TypeHexapole = 5
	TypeCavity   = 103
	TypeKicker   = -21
	TypeOutput   = -23
)

// Integration step constants (steps, map steps) per segment family.
const (
	DriftSteps       = 4
	DriftMapSteps    = 20
	CavitySteps      = 60
	CavityMapSteps   = 20
	QuadSteps        = 50
	QuadMapSteps     = 20
	SolenoidSteps    = 10
	SolenoidMapSteps = 20
	MagnetSteps      = 10
	MagnetMapSteps   = 20
)

// typeField is the zero-based position of the type code.
const typeField = 3

// Field is one numeric field of a record. Integer fields are printed in
// decimal, float fields in shortest %g form.
type Field struct {
	value   float64
	integer bool
}

// Int returns an integer field.
func Int(n int) Field { return Field{value: float64(n), integer: true} }

// Float returns a floating point field.
func Float(f float64) Field { return Field{value: f} }

// Value returns the numeric value of the field.
func (f Field) Value() float64 { return f.value }

// IsInt reports whether the field prints as an integer.
func (f Field) IsInt() bool { return f.integer }

func (f Field) String() string {
	if f.integer {
		return strconv.FormatInt(int64(f.value), 10)
	}
	return strconv.FormatFloat(f.value, 'g', -1, 64)
}

// Record is one deck line. Owner is the name of the element that produced
// it; it is rendered as a comment, not as a field.
type Record struct {
	Owner  string
	Fields []Field
}

// Type returns the element type code of the record.
func (r Record) Type() int {
	if len(r.Fields) <= typeField {
		return 0
	}
	return int(r.Fields[typeField].value)
}

// Length returns the segment length, field 1.
func (r Record) Length() float64 {
	if len(r.Fields) == 0 {
		return 0
	}
	return r.Fields[0].value
}

// Value returns field i (zero-based) as a float.
func (r Record) Value(i int) float64 {
	return r.Fields[i].value
}

// Values returns all fields as floats.
func (r Record) Values() []float64 {
	out := make([]float64, len(r.Fields))
	for i, f := range r.Fields {
		out[i] = f.value
	}
	return out
}

// String renders the record as a deck line without the line terminator.
func (r Record) String() string {
	var sb strings.Builder
	for i, f := range r.Fields {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(f.String())
	}
	sb.WriteString(" /")
	return sb.String()
}

func driftRecord(owner string, length, aperture float64) Record {
	return Record{Owner: owner, Fields: []Field{
		Float(length), Int(DriftSteps), Int(DriftMapSteps), Int(TypeDrift), Float(aperture / 2),
	}}
}

func kickerRecord(owner string, aperture, hkick, vkick float64) Record {
	return Record{Owner: owner, Fields: []Field{
		Float(0), Int(0), Int(0), Int(TypeKicker), Float(aperture / 2),
		Float(0), Float(hkick), Float(0), Float(vkick), Float(0), Float(0),
	}}
}

func outputRecord(owner string, aperture float64) Record {
	return Record{Owner: owner, Fields: []Field{
		Float(0), Int(0), Int(0), Int(TypeOutput), Float(aperture / 2),
	}}
}

func solenoidRecord(owner string, length, field, aperture float64) Record {
	return Record{Owner: owner, Fields: []Field{
		Float(length), Int(SolenoidSteps), Int(SolenoidMapSteps), Int(TypeSolenoid),
		Float(field), Int(0), Float(aperture / 2),
	}}
}

func quadRecord(owner string, length, gradient, aperture float64) Record {
	return Record{Owner: owner, Fields: []Field{
		Float(length), Int(QuadSteps), Int(QuadMapSteps), Int(TypeQuad),
		Float(gradient), Int(0), Float(aperture / 2),
	}}
}

func cavityRecord(owner string, length, amplitude, frequencyHz, phase float64, fileID int, aperture float64) Record {
	return Record{Owner: owner, Fields: []Field{
		Float(length), Int(CavitySteps), Int(CavityMapSteps), Int(TypeCavity),
		Float(amplitude), Float(frequencyHz), Float(phase), Int(fileID), Float(aperture / 2),
	}}
}

func bendRecord(owner string, length, aperture float64) Record {
	return Record{Owner: owner, Fields: []Field{
		Float(length), Int(MagnetSteps), Int(MagnetMapSteps), Int(TypeBend),
		Float(0), Float(0), Float(0), Float(0), Float(aperture / 2),
	}}
}

func hexapoleRecord(owner string, length, aperture float64) Record {
	return Record{Owner: owner, Fields: []Field{
		Float(length), Int(MagnetSteps), Int(MagnetMapSteps), Int(TypeHexapole),
		Float(0), Float(0), Float(aperture / 2),
	}}
}
