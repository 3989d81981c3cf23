// Package memory reads another process's address space. The platform
// implementation is chosen at build time; BufferReader serves tests and
// offline replays of dumped buffers.
package memory

import (
	"errors"
	"log/slog"
)

var (
	ErrNotAttached     = errors.New("not attached to a process")
	ErrPermission      = errors.New("permission denied")
	ErrProcessNotFound = errors.New("process not found")
	ErrUnsupported     = errors.New("not supported on this platform")
)

// Reader is a read-only connection to one process.
//
// Read returns the contiguous readable prefix of the requested range, which
// may be shorter than n or empty. It fails only when the reader is not
// attached or the OS primitive fails outright.
//
// A Reader is not safe for concurrent use.
type Reader interface {
	Attach(pid uint32) error
	Read(addr uint64, n int) ([]byte, error)
	Detach() error
	Attached() bool
	ScanForBytes(needle []byte) ([]uint64, error)
}

// Process is one entry returned by FindProcesses.
type Process struct {
	PID  uint32
	Name string
}

// New returns the reader for the current operating system.
func New(log *slog.Logger) Reader {
	if log == nil {
		log = slog.Default()
	}
	return newPlatformReader(log.With("component", "memory"))
}
