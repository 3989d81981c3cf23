package memory

// BufferReader serves reads from an in-memory image of the target's address
// space starting at a fixed base. The data slice is not copied, so callers
// may mutate it between reads to simulate the target changing.
type BufferReader struct {
	base     uint64
	data     []byte
	attached bool
	chunk    int
}

// NewBufferReader maps data at base. The reader starts detached.
func NewBufferReader(base uint64, data []byte) *BufferReader {
	return &BufferReader{base: base, data: data, chunk: scanChunk}
}

// Attach marks the reader attached; the pid is ignored.
func (b *BufferReader) Attach(uint32) error {
	b.attached = true
	return nil
}

func (b *BufferReader) Read(addr uint64, n int) ([]byte, error) {
	if !b.attached {
		return nil, ErrNotAttached
	}
	end := b.base + uint64(len(b.data))
	if n <= 0 || addr < b.base || addr >= end {
		return []byte{}, nil
	}
	avail := end - addr
	if uint64(n) > avail {
		n = int(avail)
	}
	off := addr - b.base
	out := make([]byte, n)
	copy(out, b.data[off:off+uint64(n)])
	return out, nil
}

func (b *BufferReader) Detach() error {
	b.attached = false
	return nil
}

func (b *BufferReader) Attached() bool { return b.attached }

func (b *BufferReader) ScanForBytes(needle []byte) ([]uint64, error) {
	if !b.attached {
		return nil, ErrNotAttached
	}
	regions := []Region{{Base: b.base, Size: uint64(len(b.data))}}
	results, _ := scanRegions(regions, needle, b.Read, b.chunk, MaxScanResults)
	return results, nil
}
