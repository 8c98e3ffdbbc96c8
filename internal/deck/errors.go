package deck

import (
	"errors"
	"fmt"
)

// ConfigError reports a layout or construction problem that makes a deck
// impossible to build: an unrecognized element variant, an unsupported
// integrator, or an element attribute outside its valid range.
type ConfigError struct {
	Index   int    // element position in the layout, -1 if not element specific
	Element string // element name, if known
	Message string
}

func (e *ConfigError) Error() string {
	if e.Index < 0 {
		return "deck config: " + e.Message
	}
	return fmt.Sprintf("deck config: element %d (%s): %s", e.Index, e.Element, e.Message)
}

// MismatchError reports a deck record that does not match what Build would
// have produced for the element being extracted.
type MismatchError struct {
	Line     int // 1-based line in the deck text, 0 at end of input
	Element  string
	Expected string
	Found    string
}

func (e *MismatchError) Error() string {
	where := "end of deck"
	if e.Line > 0 {
		where = fmt.Sprintf("line %d", e.Line)
	}
	if e.Element == "" {
		return fmt.Sprintf("deck mismatch at %s: expected %s, found %s", where, e.Expected, e.Found)
	}
	return fmt.Sprintf("deck mismatch at %s: element %s: expected %s, found %s",
		where, e.Element, e.Expected, e.Found)
}

// IsConfigError returns true if err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsMismatchError returns true if err is or wraps a *MismatchError.
func IsMismatchError(err error) bool {
	var me *MismatchError
	return errors.As(err, &me)
}
