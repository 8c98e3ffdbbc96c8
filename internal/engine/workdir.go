package engine

import (
	"fmt"
	"os"
	"path/filepath"
)

// createWorkDir creates a fresh working directory under root and symlinks
// every regular file of dataDir into it.
func createWorkDir(root, dataDir string) (string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return "", &RuntimeError{Code: ErrCodeConfig, Message: "work root unavailable", Err: err}
	}
	if !info.IsDir() {
		return "", configError("work root %s is not a directory", root)
	}

	var entries []os.DirEntry
	if dataDir != "" {
		dataDir, err = filepath.Abs(dataDir)
		if err != nil {
			return "", fmt.Errorf("resolve data directory: %w", err)
		}
		entries, err = os.ReadDir(dataDir)
		if err != nil {
			return "", &RuntimeError{Code: ErrCodeConfig, Message: "data directory unavailable", Err: err}
		}
	}

	dir, err := os.MkdirTemp(root, "vacc-")
	if err != nil {
		return "", fmt.Errorf("create working directory: %w", err)
	}

	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		src := filepath.Join(dataDir, e.Name())
		if err := os.Symlink(src, filepath.Join(dir, e.Name())); err != nil {
			os.RemoveAll(dir)
			return "", fmt.Errorf("link data file %s: %w", e.Name(), err)
		}
	}
	return dir, nil
}
