// Package tracer records a Go execution trace of work running in this process.
package tracer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/trace"
)

// Recording is a trace captured around one call to Record.
type Recording struct {
	File string
	// Err is what the traced function returned.
	Err error
}

// Remove deletes the trace file.
func (r *Recording) Remove() error {
	if r == nil || r.File == "" {
		return nil
	}
	return os.Remove(r.File)
}

// Record runs fn with the runtime tracer on and writes the trace to a new
// threadlab-*.out file in dir (the system temp dir when empty).
//
// A failure of fn does not discard the trace; it is reported in
// Recording.Err so the caller can still analyze what happened.
func Record(dir string, fn func() error) (*Recording, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "threadlab-*.out")
	if err != nil {
		return nil, fmt.Errorf("create trace file: %w", err)
	}
	name := filepath.Clean(f.Name())

	if err := trace.Start(f); err != nil {
		f.Close()
		os.Remove(name)
		return nil, fmt.Errorf("start trace: %w", err)
	}
	fnErr := fn()
	trace.Stop()

	if err := f.Close(); err != nil {
		os.Remove(name)
		return nil, errors.Join(fmt.Errorf("close trace: %w", err), fnErr)
	}
	return &Recording{File: name, Err: fnErr}, nil
}
