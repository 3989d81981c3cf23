//go:build linux

package memory

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// procReader reads through /proc/<pid>/mem. Opening it needs ptrace access to
// the target (same user with ptrace_scope 0, or CAP_SYS_PTRACE).
type procReader struct {
	pid uint32
	mem *os.File
	log *slog.Logger
}

func newPlatformReader(log *slog.Logger) Reader {
	return &procReader{log: log}
}

func (r *procReader) Attach(pid uint32) error {
	if err := r.Detach(); err != nil {
		return err
	}

	path := fmt.Sprintf("/proc/%d/mem", pid)
	r.log.Info("opening process memory", "path", path)
	f, err := os.Open(path)
	if err != nil {
		r.log.Error("failed to open process memory", "path", path, "error", err)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("open %s: %w", path, ErrProcessNotFound)
		case errors.Is(err, fs.ErrPermission):
			return fmt.Errorf("open %s: %w", path, ErrPermission)
		}
		return fmt.Errorf("open %s: %w", path, err)
	}

	r.pid = pid
	r.mem = f
	return nil
}

func (r *procReader) Read(addr uint64, n int) ([]byte, error) {
	if r.mem == nil {
		return nil, ErrNotAttached
	}
	if n <= 0 {
		return []byte{}, nil
	}

	buf := make([]byte, n)
	fd := int(r.mem.Fd())
	total := 0
	for total < n {
		m, err := unix.Pread(fd, buf[total:], int64(addr)+int64(total))
		if err != nil {
			// EIO/EFAULT mean the next page is not mapped; keep the prefix.
			if total > 0 || errors.Is(err, unix.EIO) || errors.Is(err, unix.EFAULT) {
				break
			}
			return nil, fmt.Errorf("pread 0x%X: %w", addr, err)
		}
		if m == 0 {
			break
		}
		total += m
	}

	if total == 0 && !r.alive() {
		return nil, fmt.Errorf("pid %d: %w", r.pid, ErrProcessNotFound)
	}
	return buf[:total], nil
}

func (r *procReader) alive() bool {
	err := unix.Kill(int(r.pid), 0)
	return !errors.Is(err, unix.ESRCH)
}

func (r *procReader) Detach() error {
	if r.mem == nil {
		return nil
	}
	err := r.mem.Close()
	r.mem = nil
	r.log.Info("closed process memory", "pid", r.pid)
	if err != nil {
		return fmt.Errorf("close process memory: %w", err)
	}
	return nil
}

func (r *procReader) Attached() bool { return r.mem != nil }

func (r *procReader) ScanForBytes(needle []byte) ([]uint64, error) {
	if r.mem == nil {
		return nil, ErrNotAttached
	}

	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", r.pid))
	if err != nil {
		return nil, fmt.Errorf("open maps: %w", err)
	}
	defer f.Close()

	regions, err := parseMaps(f)
	if err != nil {
		return nil, err
	}
	regions = clipRegions(regions, scanLow, scanHigh)

	r.log.Info("scanning process memory", "pattern_len", len(needle), "regions", len(regions))
	results, stats := scanRegions(regions, needle, r.Read, scanChunk, MaxScanResults)
	if stats.Capped {
		r.log.Warn("scan capped", "max_results", MaxScanResults)
	}
	r.log.Info("scan complete",
		"regions", stats.Regions,
		"mb_scanned", float64(stats.Bytes)/(1024*1024),
		"matches", len(results))
	return results, nil
}
