package memory

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// The target is a 32-bit client; nothing useful lives outside this window.
	scanLow  = 0x10000
	scanHigh = 0x7FFF0000

	scanChunk = 4 << 20

	// MaxScanResults caps ScanForBytes so a common needle cannot exhaust memory.
	MaxScanResults = 1000
)

// Region is a readable range of the target's address space.
type Region struct {
	Base uint64
	Size uint64
}

// ScanStats summarises one scan for logging.
type ScanStats struct {
	Regions int
	Bytes   uint64
	Capped  bool
}

type readFunc func(addr uint64, n int) ([]byte, error)

// scanRegions searches each region in chunks. Consecutive chunks overlap by
// len(needle)-1 bytes so matches straddling a boundary are found exactly once.
// Unreadable chunks are skipped.
func scanRegions(regions []Region, needle []byte, read readFunc, chunk, limit int) ([]uint64, ScanStats) {
	var (
		results []uint64
		stats   ScanStats
	)
	if len(needle) == 0 {
		return results, stats
	}

	step := chunk
	if len(needle) > 1 && chunk > len(needle)-1 {
		step = chunk - (len(needle) - 1)
	}

	for _, region := range regions {
		if len(results) >= limit {
			break
		}
		for off := uint64(0); off < region.Size && len(results) < limit; {
			size := min(uint64(chunk), region.Size-off)
			addr := region.Base + off

			if data, err := read(addr, int(size)); err == nil {
				stats.Bytes += uint64(len(data))
				for i := 0; len(results) < limit; {
					j := bytes.Index(data[i:], needle)
					if j < 0 {
						break
					}
					results = append(results, addr+uint64(i+j))
					i += j + 1
				}
			}

			if off+uint64(chunk) < region.Size {
				off += uint64(step)
			} else {
				off += uint64(chunk)
			}
		}
		stats.Regions++
	}

	stats.Capped = len(results) >= limit
	return results, stats
}

// clipRegions trims regions to [lo, hi) and drops the ones outside it.
func clipRegions(regions []Region, lo, hi uint64) []Region {
	out := make([]Region, 0, len(regions))
	for _, r := range regions {
		start, end := r.Base, r.Base+r.Size
		if end <= lo || start >= hi {
			continue
		}
		start = max(start, lo)
		end = min(end, hi)
		out = append(out, Region{Base: start, Size: end - start})
	}
	return out
}

// parseMaps reads /proc/<pid>/maps and returns the readable, non-special
// mappings.
func parseMaps(r io.Reader) ([]Region, error) {
	var regions []Region
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		perms := fields[1]
		if len(perms) < 1 || perms[0] != 'r' {
			continue
		}
		// [vvar] and friends fault on read.
		if len(fields) >= 6 && strings.HasPrefix(fields[5], "[v") {
			continue
		}

		lo, hi, ok := strings.Cut(fields[0], "-")
		if !ok {
			return nil, fmt.Errorf("malformed maps line %q", sc.Text())
		}
		start, err := strconv.ParseUint(lo, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("parse region start: %w", err)
		}
		end, err := strconv.ParseUint(hi, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("parse region end: %w", err)
		}
		if end <= start {
			continue
		}
		regions = append(regions, Region{Base: start, Size: end - start})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read maps: %w", err)
	}
	return regions, nil
}
