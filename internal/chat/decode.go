package chat

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/text/encoding/unicode"

	"github.com/john/memchat/internal/layout"
	"github.com/john/memchat/internal/markup"
)

// Decode turns one slot into a message. It reports false when the slot is
// shorter than the stride or both text fields are empty, which is how the
// client leaves unused slots. A nonzero sender GUID does not save a slot
// with no text.
func Decode(slot []byte, l layout.Layout) (Message, bool) {
	if len(slot) < l.Stride {
		return Message{}, false
	}

	formatted := ReadCString(slot, l.Formatted, l.StringMaxLen)
	raw := ReadCString(slot, l.PlainText, l.StringMaxLen)
	text := markup.Strip(raw)
	if formatted == "" && text == "" {
		return Message{}, false
	}

	channel := ReadU32(slot, l.Channel)
	return Message{
		ID:            newID(),
		SenderGUID:    ReadU64(slot, l.SenderGUID),
		SenderName:    senderName(formatted),
		Text:          text,
		Formatted:     formatted,
		Category:      CategoryFromCode(ReadU32(slot, l.Category)),
		ChannelNumber: channel,
		ChannelName:   channelName(formatted, channel),
		Timestamp:     ReadU32(slot, l.Timestamp),
		Segments:      markup.ParseSegments(raw),
	}, true
}

// ReadU32 reads a little-endian value at off, or 0 if it does not fit.
func ReadU32(b []byte, off int) uint32 {
	if off < 0 || off+4 > len(b) {
		return 0
	}
	return binary.LittleEndian.Uint32(b[off:])
}

// ReadU64 reads a little-endian value at off, or 0 if it does not fit.
func ReadU64(b []byte, off int) uint64 {
	if off < 0 || off+8 > len(b) {
		return 0
	}
	return binary.LittleEndian.Uint64(b[off:])
}

// ReadCString reads at most maxLen bytes at off, stopping at the first NUL.
// Invalid UTF-8 is replaced rather than rejected.
func ReadCString(b []byte, off, maxLen int) string {
	if off < 0 || off >= len(b) || maxLen <= 0 {
		return ""
	}
	end := min(off+maxLen, len(b))
	s := b[off:end]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return decodeLossy(s)
}

func decodeLossy(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	// The decoder replaces invalid sequences with U+FFFD and never fails.
	out, _ := unicode.UTF8.NewDecoder().Bytes(b)
	return string(out)
}
