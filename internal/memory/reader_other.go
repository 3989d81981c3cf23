//go:build !linux && !windows

package memory

import "log/slog"

type unsupportedReader struct{}

func newPlatformReader(*slog.Logger) Reader { return unsupportedReader{} }

func (unsupportedReader) Attach(uint32) error { return ErrUnsupported }

func (unsupportedReader) Read(uint64, int) ([]byte, error) { return nil, ErrNotAttached }

func (unsupportedReader) Detach() error { return nil }

func (unsupportedReader) Attached() bool { return false }

func (unsupportedReader) ScanForBytes([]byte) ([]uint64, error) { return nil, ErrUnsupported }

// FindProcesses is not available on this platform.
func FindProcesses(string) ([]Process, error) { return nil, ErrUnsupported }
