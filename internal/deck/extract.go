package deck

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/vacc/internal/lattice"
)

// lengthTolerance bounds the relative difference accepted between a deck
// length field and the length Build would have written.
const lengthTolerance = 1e-9

// Extract reconstructs the settings a deck was built from.
//
// Elements are walked in layout order, consuming only records with a
// positive type code; drift, kicker and output records carry no
// independent settings and are skipped. Every consumed record must have
// the type code and length Build would have produced for the element,
// otherwise a *MismatchError names the offending line.
//
// Each deck value seeds the full channel triple (CSET, RSET and RD).
// Corrector kicks live only in kicker records and are seeded with 0.0.
func Extract(elements []lattice.Element, r io.Reader) (lattice.Settings, error) {
	rr := newRecordReader(r)
	s := lattice.Settings{}

	for i, el := range elements {
		switch e := el.(type) {
		case lattice.Drift, lattice.Valve, lattice.Port, lattice.Stripper,
			lattice.LossMonitor, lattice.ProfileMonitor, lattice.BunchLengthMonitor,
			lattice.CurrentMonitor, lattice.PositionMonitor:
			// no positive-type records

		case lattice.Cavity:
			rec, err := rr.expect(e.Name, TypeCavity, e.Length, 7)
			if err != nil {
				return nil, err
			}
			setTriple(s, e.Amplitude, rec.values[4])
			setTriple(s, e.Phase, rec.values[6])

		case lattice.SolenoidCorrector:
			rec, err := rr.expect(e.Name, TypeSolenoid, e.Length/2, 5)
			if err != nil {
				return nil, err
			}
			if _, err := rr.expect(e.Name, TypeSolenoid, e.Length/2, 5); err != nil {
				return nil, err
			}
			setTriple(s, e.Field, rec.values[4])
			setTriple(s, e.Horizontal(), 0)
			setTriple(s, e.Vertical(), 0)

		case lattice.Quadrupole:
			rec, err := rr.expect(e.Name, TypeQuad, e.Length, 5)
			if err != nil {
				return nil, err
			}
			setTriple(s, e.Gradient, rec.values[4])

		case lattice.Corrector:
			setTriple(s, e.Horizontal, 0)
			setTriple(s, e.Vertical, 0)

		case lattice.Bend:
			if _, err := rr.expect(e.Name, TypeBend, e.Length, 4); err != nil {
				return nil, err
			}
		case lattice.Hexapole:
			if _, err := rr.expect(e.Name, TypeHexapole, e.Length, 4); err != nil {
				return nil, err
			}

		default:
			name := ""
			if el != nil {
				name = el.Attrs().Name
			}
			return nil, &ConfigError{Index: i, Element: name, Message: fmt.Sprintf("unrecognized element type %T", el)}
		}
	}

	rec, ok, err := rr.next()
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, &MismatchError{
			Line:     rec.line,
			Expected: "end of deck",
			Found:    rec.text,
		}
	}
	return s, nil
}

func setTriple(s lattice.Settings, t lattice.Triple, v float64) {
	for _, ch := range t.Channels() {
		if ch != "" {
			s.Set(ch, v)
		}
	}
}

// parsedRecord is one settings-bearing deck line.
type parsedRecord struct {
	line   int
	text   string
	values []float64
}

func (p parsedRecord) typeCode() int { return int(p.values[typeField]) }

// recordReader lazily yields the deck records that carry settings. It
// skips comment lines, the fixed preamble, records with fewer than four
// fields and records whose type code is not positive.
type recordReader struct {
	sc       *bufio.Scanner
	line     int
	preamble int
}

func newRecordReader(r io.Reader) *recordReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &recordReader{sc: sc, preamble: PreambleLines}
}

// next returns the next settings-bearing record. ok is false at end of input.
func (r *recordReader) next() (rec parsedRecord, ok bool, err error) {
	for r.sc.Scan() {
		r.line++
		text := strings.TrimSpace(strings.TrimRight(r.sc.Text(), "\r"))
		if text == "" || strings.HasPrefix(text, "!") {
			continue
		}
		if r.preamble > 0 {
			r.preamble--
			continue
		}

		fields := strings.Fields(text)
		if n := len(fields); n > 0 && fields[n-1] == "/" {
			fields = fields[:n-1]
		} else if n > 0 {
			fields[n-1] = strings.TrimSuffix(fields[n-1], "/")
		}
		if len(fields) < 4 {
			continue
		}

		values := make([]float64, len(fields))
		for i, f := range fields {
			v, perr := strconv.ParseFloat(f, 64)
			if perr != nil {
				return parsedRecord{}, false, &MismatchError{
					Line:     r.line,
					Expected: "numeric field",
					Found:    fmt.Sprintf("%q in field %d", f, i+1),
				}
			}
			values[i] = v
		}

		rec := parsedRecord{line: r.line, text: text, values: values}
		if rec.typeCode() <= 0 {
			continue
		}
		return rec, true, nil
	}
	if err := r.sc.Err(); err != nil {
		return parsedRecord{}, false, fmt.Errorf("read deck: %w", err)
	}
	return parsedRecord{}, false, nil
}

// expect consumes the next record and checks its type code, length and
// minimum field count against what Build emits for element.
func (r *recordReader) expect(element string, typeCode int, length float64, minFields int) (parsedRecord, error) {
	want := fmt.Sprintf("type %d with length %s", typeCode, strconv.FormatFloat(length, 'g', -1, 64))

	rec, ok, err := r.next()
	if err != nil {
		return parsedRecord{}, err
	}
	if !ok {
		return parsedRecord{}, &MismatchError{Element: element, Expected: want, Found: "end of deck"}
	}
	if rec.typeCode() != typeCode || !sameLength(rec.values[0], length) {
		return parsedRecord{}, &MismatchError{
			Line:     rec.line,
			Element:  element,
			Expected: want,
			Found:    fmt.Sprintf("type %d with length %s", rec.typeCode(), strconv.FormatFloat(rec.values[0], 'g', -1, 64)),
		}
	}
	if len(rec.values) < minFields {
		return parsedRecord{}, &MismatchError{
			Line:     rec.line,
			Element:  element,
			Expected: fmt.Sprintf("at least %d fields", minFields),
			Found:    fmt.Sprintf("%d fields", len(rec.values)),
		}
	}
	return rec, nil
}

func sameLength(a, b float64) bool {
	return math.Abs(a-b) <= lengthTolerance*math.Max(1, math.Abs(b))
}
