package memory

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferReaderRequiresAttach(t *testing.T) {
	r := NewBufferReader(0x1000, make([]byte, 32))

	_, err := r.Read(0x1000, 4)
	require.True(t, errors.Is(err, ErrNotAttached))

	require.NoError(t, r.Attach(1234))
	require.True(t, r.Attached())

	require.NoError(t, r.Detach())
	require.NoError(t, r.Detach(), "detach must be idempotent")
	require.False(t, r.Attached())
}

func TestBufferReaderReturnsReadablePrefix(t *testing.T) {
	data := []byte("0123456789")
	r := NewBufferReader(0x1000, data)
	require.NoError(t, r.Attach(0))

	got, err := r.Read(0x1000, 4)
	require.NoError(t, err)
	require.Equal(t, []byte("0123"), got)

	got, err = r.Read(0x1006, 100)
	require.NoError(t, err)
	require.Equal(t, []byte("6789"), got, "short read past the end keeps the prefix")

	got, err = r.Read(0x2000, 8)
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = r.Read(0x0FFF, 8)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestBufferReaderCopiesOnRead(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	r := NewBufferReader(0, data)
	require.NoError(t, r.Attach(0))

	got, err := r.Read(0, 4)
	require.NoError(t, err)
	got[0] = 99
	require.Equal(t, byte(1), data[0])
}

func TestScanFindsMatchAcrossChunkBoundary(t *testing.T) {
	data := make([]byte, 64)
	copy(data[14:], "needle")

	r := NewBufferReader(0x5000, data)
	r.chunk = 16
	require.NoError(t, r.Attach(0))

	got, err := r.ScanForBytes([]byte("needle"))
	require.NoError(t, err)
	require.Equal(t, []uint64{0x5000 + 14}, got)
}

func TestScanReportsEveryMatchOnce(t *testing.T) {
	data := []byte(strings.Repeat("ab", 40))

	r := NewBufferReader(0, data)
	r.chunk = 7
	require.NoError(t, r.Attach(0))

	got, err := r.ScanForBytes([]byte("ab"))
	require.NoError(t, err)
	require.Len(t, got, 40)
	for i, addr := range got {
		require.Equal(t, uint64(2*i), addr)
	}
}

func TestScanEmptyNeedle(t *testing.T) {
	r := NewBufferReader(0, []byte("abc"))
	require.NoError(t, r.Attach(0))

	got, err := r.ScanForBytes(nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestScanRegionsHonoursLimit(t *testing.T) {
	data := make([]byte, 100)
	read := func(addr uint64, n int) ([]byte, error) {
		return data[addr : addr+uint64(n)], nil
	}

	got, stats := scanRegions([]Region{{Base: 0, Size: 100}}, []byte{0}, read, 32, 10)
	require.Len(t, got, 10)
	require.True(t, stats.Capped)
}

func TestScanRegionsSkipsUnreadableChunks(t *testing.T) {
	read := func(addr uint64, n int) ([]byte, error) {
		if addr < 0x100 {
			return nil, errors.New("fault")
		}
		buf := make([]byte, n)
		copy(buf, "hit")
		return buf, nil
	}

	got, stats := scanRegions([]Region{{Base: 0, Size: 0x10}, {Base: 0x100, Size: 0x10}}, []byte("hit"), read, 64, 100)
	require.Equal(t, []uint64{0x100}, got)
	require.Equal(t, 2, stats.Regions)
	require.False(t, stats.Capped)
}

func TestClipRegions(t *testing.T) {
	in := []Region{
		{Base: 0x0, Size: 0x8000},
		{Base: 0x8000, Size: 0x10000},
		{Base: 0x7FFE0000, Size: 0x20000},
		{Base: 0x80000000, Size: 0x1000},
	}
	got := clipRegions(in, scanLow, scanHigh)
	require.Equal(t, []Region{
		{Base: 0x10000, Size: 0x8000},
		{Base: 0x7FFE0000, Size: 0x10000},
	}, got)
}

func TestParseMaps(t *testing.T) {
	maps := `00400000-00452000 r-xp 00000000 08:02 173521 /usr/bin/wine
00651000-00652000 rw-p 00051000 08:02 173521 /usr/bin/wine
00652000-00655000 ---p 00000000 00:00 0
7ffc1000-7ffc3000 r--p 00000000 00:00 0 [vvar]
7ffc3000-7ffc5000 r-xp 00000000 00:00 0
`
	regions, err := parseMaps(strings.NewReader(maps))
	require.NoError(t, err)
	require.Equal(t, []Region{
		{Base: 0x400000, Size: 0x52000},
		{Base: 0x651000, Size: 0x1000},
		{Base: 0x7ffc3000, Size: 0x2000},
	}, regions)
}

func TestParseMapsRejectsGarbage(t *testing.T) {
	_, err := parseMaps(strings.NewReader("zzzz r--p\n"))
	require.Error(t, err)
}
