package engine

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Working directory file names.
const (
	DeckFile       = "test.in"
	PhaseFile      = "fort.18" // col 1: phase (rad), col 3: kinetic energy (MeV)
	HorizontalFile = "fort.24" // col 1: x centroid (m), col 2: x rms (m)
	VerticalFile   = "fort.25" // col 1: y centroid (m), col 2: y rms (m)
	SolverLogFile  = "solver.log"
	ProcessLogFile = "vacc.log"
)

// Row is one solver output row, in solver units.
type Row struct {
	Phase  float64 // rad
	Energy float64 // MeV
	X      float64 // m
	XRMS   float64 // m
	Y      float64 // m
	YRMS   float64 // m
}

// XMillimetres returns the horizontal centroid in mm.
func (r Row) XMillimetres() float64 { return r.X * 1e3 }

// YMillimetres returns the vertical centroid in mm.
func (r Row) YMillimetres() float64 { return r.Y * 1e3 }

// PhaseDegrees returns the beam phase in degrees.
func (r Row) PhaseDegrees() float64 { return r.Phase * 180 / math.Pi }

// ReadResults parses the three result files in dir. Row i of the result
// belongs to output i of the deck.
//
// A missing file yields a MISSING_RESULT *RuntimeError; an unparsable file
// or files of unequal length yield RESULT_FORMAT.
func ReadResults(dir string) ([]Row, error) {
	phase, err := readColumns(filepath.Join(dir, PhaseFile), 1, 3)
	if err != nil {
		return nil, err
	}
	horizontal, err := readColumns(filepath.Join(dir, HorizontalFile), 1, 2)
	if err != nil {
		return nil, err
	}
	vertical, err := readColumns(filepath.Join(dir, VerticalFile), 1, 2)
	if err != nil {
		return nil, err
	}

	if len(horizontal) != len(phase) || len(vertical) != len(phase) {
		return nil, &RuntimeError{
			Code:    ErrCodeResultFormat,
			Message: "result files have different row counts",
			Details: map[string]string{
				PhaseFile:      strconv.Itoa(len(phase)),
				HorizontalFile: strconv.Itoa(len(horizontal)),
				VerticalFile:   strconv.Itoa(len(vertical)),
			},
		}
	}

	rows := make([]Row, len(phase))
	for i := range rows {
		rows[i] = Row{
			Phase:  phase[i][0],
			Energy: phase[i][1],
			X:      horizontal[i][0],
			XRMS:   horizontal[i][1],
			Y:      vertical[i][0],
			YRMS:   vertical[i][1],
		}
	}
	return rows, nil
}

// readColumns returns the selected zero-based columns of every non-blank,
// non-comment line of a whitespace-delimited numeric file.
func readColumns(path string, cols ...int) ([][]float64, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &RuntimeError{
			Code:    ErrCodeMissingResult,
			Message: fmt.Sprintf("result file %s not found", filepath.Base(path)),
			Err:     err,
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open result file: %w", err)
	}
	defer f.Close()

	var rows [][]float64
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		row := make([]float64, len(cols))
		for i, c := range cols {
			if c >= len(fields) {
				return nil, formatError(path, line, fmt.Sprintf("%d columns, need column %d", len(fields), c))
			}
			v, err := strconv.ParseFloat(fields[c], 64)
			if err != nil {
				return nil, formatError(path, line, fmt.Sprintf("column %d: %q is not a number", c, fields[c]))
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return rows, nil
}

func formatError(path string, line int, msg string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeResultFormat,
		Message: fmt.Sprintf("%s line %d: %s", filepath.Base(path), line, msg),
	}
}
