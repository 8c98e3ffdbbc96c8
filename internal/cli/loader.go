package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/vacc/internal/compiler"
	"github.com/roach88/vacc/internal/deck"
	"github.com/roach88/vacc/internal/engine"
	"github.com/roach88/vacc/internal/lattice"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNotFound    = "E002" // Path not found
	ErrCodeLayout      = "E003" // Layout file failed to load or compile
	ErrCodeSettings    = "E004" // Settings file unreadable or invalid
	ErrCodeDeck        = "E005" // Deck build or extraction failed
	ErrCodeWriteFailed = "E006" // File write error
	ErrCodeDatabase    = "E007" // History database error
	ErrCodeRuntime     = "E008" // Twin runtime failed to start or stop
	ErrCodeUsage       = "E009" // Conflicting or invalid flags
)

// LoadError represents an error that occurred while loading command input.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
	Err     error
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Err }

// failLoad reports a load error through the formatter as a command error.
func (f *OutputFormatter) failLoad(err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		msg := loadErr.Message
		if loadErr.Pos.IsValid() {
			msg = fmt.Sprintf("%s:%d:%d: %s", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column(), msg)
		}
		return f.Fail(ExitCommandError, loadErr.Code, msg, loadErr.Err)
	}
	return f.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
}

// loadedLayout is a compiled layout file with its twin configuration.
type loadedLayout struct {
	Path     string
	Elements []lattice.Element
	Config   engine.Config
}

// loadLayout loads and compiles a layout file or package directory. The
// layout is named after the file when it has no name of its own.
func loadLayout(path string) (*loadedLayout, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("layout not found: %s", path), Err: err}
	}

	v, err := compiler.LoadFile(path)
	if err != nil {
		return nil, convertCompileError(err)
	}
	layout, err := compiler.CompileLayout(v)
	if err != nil {
		return nil, convertCompileError(err)
	}
	cfg, err := compiler.CompileTwin(v)
	if err != nil {
		return nil, convertCompileError(err)
	}
	if cfg.Layout == "" {
		cfg.Layout = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &loadedLayout{Path: path, Elements: layout.Elements, Config: cfg}, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeLayout,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeLayout, Message: err.Error(), Err: err}
}

// loadSettings reads settings from a YAML file or reconstructs them from a
// deck. With neither source the settings are empty and every channel the
// deck references starts at zero.
func loadSettings(elements []lattice.Element, settingsPath, deckPath string) (lattice.Settings, error) {
	switch {
	case settingsPath != "" && deckPath != "":
		return nil, &LoadError{Code: ErrCodeUsage, Message: "--settings and --from-deck are mutually exclusive"}
	case settingsPath != "":
		f, err := os.Open(settingsPath)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("settings not found: %s", settingsPath), Err: err}
		}
		defer f.Close()
		s, err := lattice.ReadSettings(f)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeSettings, Message: fmt.Sprintf("reading %s", settingsPath), Err: err}
		}
		return s, nil
	case deckPath != "":
		return extractDeck(elements, deckPath)
	default:
		return lattice.Settings{}, nil
	}
}

func extractDeck(elements []lattice.Element, path string) (lattice.Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("deck not found: %s", path), Err: err}
	}
	defer f.Close()

	s, err := deck.Extract(elements, f)
	if err != nil {
		msg := fmt.Sprintf("extracting %s: %v", path, err)
		if deck.IsMismatchError(err) {
			msg = fmt.Sprintf("deck %s does not match the layout: %v", path, err)
		}
		return nil, &LoadError{Code: ErrCodeDeck, Message: msg, Err: err}
	}
	return s, nil
}
