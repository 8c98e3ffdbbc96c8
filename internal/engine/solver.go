package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Solver runs one simulation over the deck in dir and leaves its result
// files there. Solve must return once ctx is done.
type Solver interface {
	Solve(ctx context.Context, dir string) error
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(ctx context.Context, dir string) error

// Solve calls f(ctx, dir).
func (f SolverFunc) Solve(ctx context.Context, dir string) error {
	return f(ctx, dir)
}

// ProcessSolver runs the solver as a subprocess rooted at the working
// directory. Its stdout and stderr are appended to SolverLogFile.
type ProcessSolver struct {
	Command []string
}

// Solve runs the command and waits for it to exit.
func (p ProcessSolver) Solve(ctx context.Context, dir string) error {
	if len(p.Command) == 0 || p.Command[0] == "" {
		return errors.New("no solver command configured")
	}

	out, err := os.OpenFile(filepath.Join(dir, SolverLogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open solver log: %w", err)
	}
	defer out.Close()

	cmd := exec.CommandContext(ctx, p.Command[0], p.Command[1:]...)
	cmd.Dir = dir
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", p.Command[0], ctxErr)
		}
		return fmt.Errorf("%s: %w", p.Command[0], err)
	}
	return nil
}
