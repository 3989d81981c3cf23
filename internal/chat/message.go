// Package chat decodes slots of the client's chat ring buffer into
// messages.
package chat

import (
	"strconv"
	"sync/atomic"

	"github.com/john/memchat/internal/markup"
)

// nextID is shared by every decoder in the process.
var nextID atomic.Uint64

func newID() uint64 { return nextID.Add(1) }

// Message is one decoded chat line. It is not modified after Decode
// returns it.
type Message struct {
	ID            uint64
	SenderGUID    uint64
	SenderName    string
	Text          string
	Formatted     string
	Category      Category
	ChannelNumber uint32
	ChannelName   string
	Timestamp     uint32
	Segments      []markup.Segment
}

// TypeLabel is the category label, with the channel name for channel
// messages.
func (m Message) TypeLabel() string {
	if !m.Category.IsChannel() {
		return m.Category.Label()
	}
	if m.ChannelName != "" {
		return "Channel: " + m.ChannelName
	}
	return "Channel: " + strconv.FormatUint(uint64(m.ChannelNumber), 10)
}

// DisplayPrefix returns "[Label] Sender: ", or "[Label] " without a sender.
func (m Message) DisplayPrefix() string {
	if m.SenderName == "" {
		return "[" + m.TypeLabel() + "] "
	}
	return "[" + m.TypeLabel() + "] " + m.SenderName + ": "
}

func (m Message) DisplayLine() string {
	return m.DisplayPrefix() + m.Text
}

// HasLinks reports whether any segment is a clickable link.
func (m Message) HasLinks() bool {
	for _, s := range m.Segments {
		if s.IsLink() {
			return true
		}
	}
	return false
}
