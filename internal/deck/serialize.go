package deck

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// lineEnd terminates every deck line; the solver expects DOS line endings.
const lineEnd = "\r\n"

// PreambleLines is the number of non-comment lines before the first record.
const PreambleLines = 11

// Header holds the per-twin values written into the deck preamble.
type Header struct {
	Processors int
	Particles  int
	Integrator Integrator
}

// Validate checks the header values.
func (h Header) Validate() error {
	if h.Processors < 1 {
		return &ConfigError{Index: -1, Message: fmt.Sprintf("processor count %d < 1", h.Processors)}
	}
	if h.Particles < 1 {
		return &ConfigError{Index: -1, Message: fmt.Sprintf("particle count %d < 1", h.Particles)}
	}
	return h.Integrator.Validate()
}

// preamble returns the fixed solver configuration lines. Only processor
// count, particle count and integrator vary; the rest describes the mesh,
// the initial distribution and the reference particle of the facility's
// front end.
func (h Header) preamble() []string {
	return []string{
		fmt.Sprintf("%d 1", h.Processors),
		fmt.Sprintf("6 %d %d 0 1", h.Particles, int(h.Integrator)),
		"65 65 129 4 0.14 0.14 0.1025446",
		"3 0 0 1",
		fmt.Sprintf("%d", h.Particles),
		"0.0",
		"1.48852718947e-10",
		"0.00175 0.003 -0.1 1 1 0 0",
		"0.00175 0.003 -0.1 1 1 0 0",
		"0.1 0.00035 0 1 1 0 0",
		"0.0 500000.0 931494320.0 0.138655462 80500000.0 0.0",
	}
}

// Serialize writes the deck preamble followed by one line per record.
// A comment naming the owning element precedes each element's records.
func Serialize(w io.Writer, h Header, records []Record) error {
	if err := h.Validate(); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	write := func(s string) {
		bw.WriteString(s)
		bw.WriteString(lineEnd)
	}

	write(fmt.Sprintf("! vacc deck: %d records, integrator %s", len(records), h.Integrator))
	for _, line := range h.preamble() {
		write(line)
	}

	owner := ""
	for i, r := range records {
		if i == 0 || r.Owner != owner {
			owner = r.Owner
			write("! " + owner)
		}
		write(r.String())
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write deck: %w", err)
	}
	return nil
}

// Render returns the serialized deck as a string.
func Render(h Header, records []Record) (string, error) {
	var sb strings.Builder
	if err := Serialize(&sb, h, records); err != nil {
		return "", err
	}
	return sb.String(), nil
}
