// Package message is the persisted and published form of a chat message.
package message

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/john/memchat/internal/chat"
)

// Record represents one captured chat line as written to disk, NATS and
// the history store.
type Record struct {
	Session     uuid.UUID `json:"session"`                // Capture session, new on every start
	ID          uint64    `json:"id"`                     // Per-process message id
	ObservedAt  string    `json:"observed_at"`            // When the poll saw it, RFC3339 (UTC)
	Category    string    `json:"category"`               // Category name, e.g. "Guild"
	Code        uint32    `json:"code"`                   // Raw category code
	Stream      string    `json:"stream"`                 // Grouping key for files and subjects
	Channel     uint32    `json:"channel,omitempty"`      // Channel number
	ChannelName string    `json:"channel_name,omitempty"` // Resolved channel name
	SenderGUID  string    `json:"sender_guid,omitempty"`  // Hex, empty when zero
	Sender      string    `json:"sender,omitempty"`       // Sender name if it could be recovered
	Timestamp   uint32    `json:"timestamp,omitempty"`    // Client timestamp
	Text        string    `json:"text"`                   // Plain text
	Formatted   string    `json:"formatted,omitempty"`    // Raw formatted text
	Line        string    `json:"line"`                   // "[Label] Sender: text"
	Links       []Link    `json:"links,omitempty"`
}

// Link is a clickable object reference found in the message.
type Link struct {
	Kind string `json:"kind"`
	ID   uint32 `json:"id,omitempty"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// FromChat converts a decoded message.
func FromChat(session uuid.UUID, m chat.Message, observed time.Time) Record {
	r := Record{
		Session:     session,
		ID:          m.ID,
		ObservedAt:  observed.UTC().Format(time.RFC3339),
		Category:    m.Category.String(),
		Code:        m.Category.Code(),
		Stream:      StreamKey(m),
		Channel:     m.ChannelNumber,
		ChannelName: m.ChannelName,
		Sender:      m.SenderName,
		Timestamp:   m.Timestamp,
		Text:        m.Text,
		Formatted:   m.Formatted,
		Line:        m.DisplayLine(),
	}
	if m.SenderGUID != 0 {
		r.SenderGUID = fmt.Sprintf("0x%016X", m.SenderGUID)
	}
	for _, s := range m.Segments {
		if !s.IsLink() {
			continue
		}
		r.Links = append(r.Links, Link{
			Kind: s.Link.Kind.String(),
			ID:   s.Link.ID,
			Name: s.Text,
			URL:  s.URL(),
		})
	}
	return r
}

// StreamKey groups messages by conversation: "guild", "whisper",
// "channel_trade", and so on. Keys are lowercase and contain only letters,
// digits and underscores.
func StreamKey(m chat.Message) string {
	c := m.Category
	switch {
	case c.IsChannel():
		if name := slug(channelTitle(m.ChannelName)); name != "" {
			return "channel_" + name
		}
		return fmt.Sprintf("channel_%d", m.ChannelNumber)
	case c == chat.MonsterSay, c == chat.MonsterYell, c == chat.MonsterParty,
		c == chat.MonsterWhisper, c == chat.MonsterEmote:
		return "npc"
	case c == chat.Whisper, c == chat.WhisperMob, c == chat.WhisperInform:
		return "whisper"
	case c == chat.TextEmote:
		return "emote"
	case c == chat.Afk, c == chat.Dnd, c == chat.Ignored:
		return "system"
	case !c.Known():
		return "unknown"
	}
	return slug(c.Label())
}

// channelTitle drops the "2. " number prefix and any " - Zone" suffix the
// client adds to channel names.
func channelTitle(name string) string {
	if num, rest, ok := strings.Cut(name, ". "); ok && isDigits(num) {
		name = rest
	}
	name, _, _ = strings.Cut(name, " - ")
	return name
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func slug(s string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(s) {
		if r < 0x80 && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
