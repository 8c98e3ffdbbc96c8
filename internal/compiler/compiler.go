package compiler

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaCUE string

// LoadFile builds the CUE value of a layout file, or of every .cue file
// of the package in a directory.
func LoadFile(path string) (cue.Value, error) {
	info, err := os.Stat(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("load %s: %w", path, err)
	}

	cfg := &load.Config{Dir: path}
	args := []string{"."}
	if !info.IsDir() {
		cfg.Dir = filepath.Dir(path)
		args = []string{"./" + filepath.Base(path)}
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("load %s: no CUE instances loaded", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, formatCUEError(inst.Err)
	}

	v := cuecontext.New().BuildInstance(inst)
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return v, nil
}

// schema returns the named definition of the embedded schema, compiled in
// the context of v so the two can be unified.
func schema(v cue.Value, def string) (cue.Value, error) {
	s := v.Context().CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := s.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compile embedded schema: %w", err)
	}
	return s.LookupPath(cue.ParsePath(def)), nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	field := "cue"
	if path := firstErr.Path(); len(path) > 0 {
		field = strings.Join(path, ".")
	}
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   field,
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return &CompileError{Field: field, Message: firstErr.Error()}
}
