package chat

import (
	"strconv"
	"strings"
)

// Servers disagree on how they tag senders and channels, so each rule is
// tried in order and an empty capture falls through to the next one.

func senderName(formatted string) string {
	if name := between(formatted, "Player Name: [", "]"); name != "" {
		return name
	}
	return between(formatted, "|Hplayer:", "|")
}

func channelName(formatted string, number uint32) string {
	if name := between(formatted, "Channel: [", "]"); name != "" {
		return name
	}
	if i := strings.Index(formatted, "|Hchannel:"); i >= 0 {
		if name := between(formatted[i:], "|h[", "]"); name != "" {
			return name
		}
	}
	if number > 0 {
		return strconv.FormatUint(uint64(number), 10)
	}
	return ""
}

// between returns the text after the first open up to the next close.
func between(s, open, close string) string {
	_, rest, ok := strings.Cut(s, open)
	if !ok {
		return ""
	}
	v, _, ok := strings.Cut(rest, close)
	if !ok {
		return ""
	}
	return v
}
