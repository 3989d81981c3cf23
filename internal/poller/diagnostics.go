package poller

import (
	"fmt"

	"github.com/john/memchat/internal/chat"
	"github.com/john/memchat/internal/layout"
	"github.com/john/memchat/internal/memory"
)

const previewLen = 80

// SlotSummary is the raw view of one populated slot, for checking offsets
// against a live client.
type SlotSummary struct {
	Index     int
	GUID      uint64
	Category  uint32
	Channel   uint32
	Sequence  uint32
	Timestamp uint32
	Formatted string
	Text      string
}

// Count is the value found at one of the layout's count addresses.
type Count struct {
	Addr  uint64
	Value uint32
	Err   error
}

// ReadCounts reads the message counters some builds keep next to the
// buffer. A short read is reported per address rather than as an error.
func ReadCounts(r memory.Reader, l layout.Layout) []Count {
	counts := make([]Count, 0, len(l.CountAddrs))
	for _, addr := range l.CountAddrs {
		c := Count{Addr: addr}
		b, err := r.Read(addr, 4)
		switch {
		case err != nil:
			c.Err = err
		case len(b) < 4:
			c.Err = fmt.Errorf("short read: %d bytes", len(b))
		default:
			c.Value = chat.ReadU32(b, 0)
		}
		counts = append(counts, c)
	}
	return counts
}

// Inspect reads the whole buffer and summarizes every slot that has a GUID
// or text. Unlike Poll it fails on a short read, since a short read usually
// means the buffer base is wrong.
func Inspect(r memory.Reader, l layout.Layout) ([]SlotSummary, error) {
	size := l.BufferSize()
	buf, err := r.Read(l.BufferBase, size)
	if err != nil {
		return nil, fmt.Errorf("read chat buffer at 0x%X: %w", l.BufferBase, err)
	}
	if len(buf) < size {
		return nil, fmt.Errorf("read chat buffer at 0x%X: got %d of %d bytes", l.BufferBase, len(buf), size)
	}

	var out []SlotSummary
	for i := range l.Slots {
		slot := buf[i*l.Stride : (i+1)*l.Stride]
		s := SlotSummary{
			Index:     i,
			GUID:      chat.ReadU64(slot, l.SenderGUID),
			Category:  chat.ReadU32(slot, l.Category),
			Channel:   chat.ReadU32(slot, l.Channel),
			Sequence:  chat.ReadU32(slot, l.Sequence),
			Timestamp: chat.ReadU32(slot, l.Timestamp),
			Formatted: chat.ReadCString(slot, l.Formatted, previewLen),
			Text:      chat.ReadCString(slot, l.PlainText, previewLen),
		}
		if s.GUID == 0 && s.Formatted == "" && s.Text == "" {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

const (
	maxPairCheck  = 200
	maxOriginList = 30
)

// StridePair is two matches a whole number of slots apart.
type StridePair struct {
	From, To uint64
	Slots    uint64
}

// Origin is a candidate buffer start assuming a match sits in one of the
// text fields.
type Origin struct {
	Match         uint64
	FromPlain     uint64
	FromFormatted uint64
}

// MatchAnalysis helps locate the buffer from the results of a text scan.
type MatchAnalysis struct {
	Matches int
	Checked int
	Pairs   []StridePair
	Origins []Origin
}

// AnalyzeMatches looks for stride-aligned pairs among the first matches and,
// for short result lists, the slot origins each match implies. Matches are
// expected in ascending order, as ScanForBytes returns them.
func AnalyzeMatches(addrs []uint64, l layout.Layout) MatchAnalysis {
	a := MatchAnalysis{Matches: len(addrs), Checked: min(len(addrs), maxPairCheck)}
	stride := uint64(l.Stride)
	for i := 0; i < a.Checked; i++ {
		for j := i + 1; j < a.Checked; j++ {
			if addrs[j] <= addrs[i] {
				continue
			}
			diff := addrs[j] - addrs[i]
			if diff%stride != 0 || diff/stride > uint64(l.Slots) {
				continue
			}
			a.Pairs = append(a.Pairs, StridePair{From: addrs[i], To: addrs[j], Slots: diff / stride})
		}
	}
	if len(addrs) <= maxOriginList {
		for _, addr := range addrs {
			a.Origins = append(a.Origins, Origin{
				Match:         addr,
				FromPlain:     addr - uint64(l.PlainText),
				FromFormatted: addr - uint64(l.Formatted),
			})
		}
	}
	return a
}
