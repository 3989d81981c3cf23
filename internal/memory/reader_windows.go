//go:build windows

package memory

import (
	"errors"
	"fmt"
	"log/slog"
	"unsafe"

	"golang.org/x/sys/windows"
)

const stillActive = 259

type winReader struct {
	pid    uint32
	handle windows.Handle
	log    *slog.Logger
}

func newPlatformReader(log *slog.Logger) Reader {
	return &winReader{log: log}
}

func (r *winReader) Attach(pid uint32) error {
	if err := r.Detach(); err != nil {
		return err
	}

	r.log.Info("opening process for reading", "pid", pid)
	h, err := windows.OpenProcess(windows.PROCESS_VM_READ|windows.PROCESS_QUERY_INFORMATION, false, pid)
	if err != nil {
		r.log.Error("open process failed", "pid", pid, "error", err)
		switch {
		case errors.Is(err, windows.ERROR_ACCESS_DENIED):
			return fmt.Errorf("open process %d: %w", pid, ErrPermission)
		case errors.Is(err, windows.ERROR_INVALID_PARAMETER):
			return fmt.Errorf("open process %d: %w", pid, ErrProcessNotFound)
		}
		return fmt.Errorf("open process %d: %w", pid, err)
	}

	r.pid = pid
	r.handle = h
	return nil
}

func (r *winReader) Read(addr uint64, n int) ([]byte, error) {
	if r.handle == 0 {
		return nil, ErrNotAttached
	}
	if n <= 0 {
		return []byte{}, nil
	}

	buf := make([]byte, n)
	var read uintptr
	err := windows.ReadProcessMemory(r.handle, uintptr(addr), &buf[0], uintptr(n), &read)
	if err != nil && !errors.Is(err, windows.ERROR_PARTIAL_COPY) {
		r.log.Debug("read process memory failed", "addr", fmt.Sprintf("0x%X", addr), "size", n, "error", err)
		return nil, fmt.Errorf("read 0x%X: %w", addr, err)
	}

	if read == 0 && !r.alive() {
		return nil, fmt.Errorf("pid %d: %w", r.pid, ErrProcessNotFound)
	}
	return buf[:read], nil
}

func (r *winReader) alive() bool {
	var code uint32
	if err := windows.GetExitCodeProcess(r.handle, &code); err != nil {
		return false
	}
	return code == stillActive
}

func (r *winReader) Detach() error {
	if r.handle == 0 {
		return nil
	}
	h := r.handle
	r.handle = 0
	r.log.Info("closing process handle", "pid", r.pid)
	if err := windows.CloseHandle(h); err != nil {
		return fmt.Errorf("close process handle: %w", err)
	}
	return nil
}

func (r *winReader) Attached() bool { return r.handle != 0 }

// regions walks the address space with VirtualQueryEx and keeps committed
// pages that are neither PAGE_NOACCESS nor PAGE_GUARD.
func (r *winReader) regions() []Region {
	var out []Region
	addr := uintptr(scanLow)
	for addr < scanHigh {
		var mbi windows.MemoryBasicInformation
		if err := windows.VirtualQueryEx(r.handle, addr, &mbi, unsafe.Sizeof(mbi)); err != nil {
			break
		}
		next := mbi.BaseAddress + mbi.RegionSize
		if next <= mbi.BaseAddress {
			break
		}
		p := mbi.Protect
		if mbi.State == windows.MEM_COMMIT && p != 0 && p&windows.PAGE_NOACCESS == 0 && p&windows.PAGE_GUARD == 0 {
			out = append(out, Region{Base: uint64(mbi.BaseAddress), Size: uint64(mbi.RegionSize)})
		}
		addr = next
	}
	return clipRegions(out, scanLow, scanHigh)
}

func (r *winReader) ScanForBytes(needle []byte) ([]uint64, error) {
	if r.handle == 0 {
		return nil, ErrNotAttached
	}

	r.log.Info("scanning process memory", "pattern_len", len(needle))
	results, stats := scanRegions(r.regions(), needle, r.Read, scanChunk, MaxScanResults)
	if stats.Capped {
		r.log.Warn("scan capped", "max_results", MaxScanResults)
	}
	r.log.Info("scan complete",
		"regions", stats.Regions,
		"mb_scanned", float64(stats.Bytes)/(1024*1024),
		"matches", len(results))
	return results, nil
}
