// Package poller watches the chat ring buffer and reports slots that changed
// since the previous poll.
package poller

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"

	"github.com/john/memchat/internal/chat"
	"github.com/john/memchat/internal/layout"
	"github.com/john/memchat/internal/memory"
)

// FingerprintLen is how many leading bytes of a slot are compared between
// polls.
const FingerprintLen = 16

type fingerprint [FingerprintLen]byte

// Stats are cumulative counters since the poller was created.
type Stats struct {
	Polls      uint64
	ShortReads uint64
	Decoded    uint64
	Messages   uint64
}

// Poller is not safe for concurrent use; the caller owns it together with
// its reader.
type Poller struct {
	r      memory.Reader
	layout layout.Layout
	log    *slog.Logger

	fingerprints []fingerprint
	initialized  bool
	stats        Stats
}

func New(r memory.Reader, l layout.Layout, log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		r:            r,
		layout:       l,
		log:          log.With("component", "poller"),
		fingerprints: make([]fingerprint, l.Slots),
	}
}

// Reset forgets every fingerprint so the next poll reloads the whole
// buffer. Call it after re-attaching.
func (p *Poller) Reset() {
	clear(p.fingerprints)
	p.initialized = false
	p.log.Info("poller reset")
}

func (p *Poller) Initialized() bool { return p.initialized }

func (p *Poller) Stats() Stats { return p.stats }

type ordered struct {
	key uint32
	msg chat.Message
}

// Poll reads the whole buffer once and returns the messages in slots that
// changed, oldest first. The first poll after New or Reset returns every
// populated slot. A short read returns nothing and leaves the fingerprints
// alone; a failed read is returned as an error.
func (p *Poller) Poll() ([]chat.Message, error) {
	p.stats.Polls++

	size := p.layout.BufferSize()
	buf, err := p.r.Read(p.layout.BufferBase, size)
	if err != nil {
		return nil, fmt.Errorf("read chat buffer: %w", err)
	}
	if len(buf) < size {
		p.stats.ShortReads++
		p.log.Warn("short chat buffer read", "got", len(buf), "want", size)
		return nil, nil
	}

	first := !p.initialized
	var found []ordered
	for i := range p.layout.Slots {
		off := i * p.layout.Stride
		slot := buf[off : off+p.layout.Stride]

		var fp fingerprint
		copy(fp[:], slot)
		if !first && fp == p.fingerprints[i] {
			continue
		}
		p.fingerprints[i] = fp
		if fp == (fingerprint{}) {
			continue
		}

		p.stats.Decoded++
		msg, ok := chat.Decode(slot, p.layout)
		if !ok {
			p.log.Debug("slot has no message", "slot", i)
			continue
		}
		key := msg.Timestamp
		if key == 0 {
			key = uint32(i)
		}
		found = append(found, ordered{key: key, msg: msg})
	}

	slices.SortStableFunc(found, func(a, b ordered) int { return cmp.Compare(a.key, b.key) })

	if first {
		p.initialized = true
		p.log.Info("loaded existing messages", "count", len(found))
	}

	out := make([]chat.Message, len(found))
	for i, f := range found {
		out[i] = f.msg
	}
	p.stats.Messages += uint64(len(out))
	return out, nil
}
