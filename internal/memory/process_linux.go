//go:build linux

package memory

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FindProcesses lists processes whose executable name matches name,
// ignoring case. Wine processes are matched on the Windows path in argv[0].
func FindProcesses(name string) ([]Process, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("read /proc: %w", err)
	}

	var found []Process
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.ParseUint(entry.Name(), 10, 32)
		if err != nil {
			continue
		}
		dir := filepath.Join("/proc", entry.Name())

		exe := argv0Name(dir)
		if exe == "" {
			comm, err := os.ReadFile(filepath.Join(dir, "comm"))
			if err != nil {
				continue
			}
			exe = strings.TrimSpace(string(comm))
		}
		if matchesName(exe, name) {
			found = append(found, Process{PID: uint32(pid), Name: exe})
		}
	}
	return found, nil
}

func argv0Name(dir string) string {
	raw, err := os.ReadFile(filepath.Join(dir, "cmdline"))
	if err != nil || len(raw) == 0 {
		return ""
	}
	argv0, _, _ := bytes.Cut(raw, []byte{0})
	return baseName(string(argv0))
}

// baseName strips both '/' and '\' directory prefixes.
func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

func matchesName(exe, want string) bool {
	return exe != "" && strings.EqualFold(exe, want)
}
