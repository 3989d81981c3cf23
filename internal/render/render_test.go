package render

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/john/memchat/internal/chat"
	"github.com/john/memchat/internal/markup"
)

func sampleMessage() chat.Message {
	return chat.Message{
		SenderName: "Jaina",
		Category:   chat.Guild,
		Text:       "need Sword now",
		Segments: []markup.Segment{
			{Kind: markup.SegmentPlain, Text: "need "},
			{Kind: markup.SegmentLink, Text: "Sword", Link: markup.LinkType{Kind: markup.LinkItem, ID: 12345}, Color: markup.White},
			{Kind: markup.SegmentPlain, Text: " now"},
		},
	}
}

func TestHex(t *testing.T) {
	require.Equal(t, "#FFFFFF", Hex(markup.White))
	require.Equal(t, "#40FF40", Hex(chat.Guild.Color()))
	require.Equal(t, "#00FF00", Hex(markup.Color{R: -1, G: 2, B: 0}))
}

func TestPrintPlainWriter(t *testing.T) {
	var out bytes.Buffer
	p := New(&out, chat.Tab{}, false)
	require.NoError(t, p.Print(sampleMessage()))
	require.Equal(t, "[Guild] Jaina: need [Sword] now\n", out.String())
}

func TestPrintWithURLs(t *testing.T) {
	var out bytes.Buffer
	p := New(&out, chat.Tab{}, true)
	require.NoError(t, p.Print(sampleMessage()))
	require.Equal(t, "[Guild] Jaina: need [Sword] <https://www.wowhead.com/item=12345> now\n", out.String())
}

func TestPrintWithoutSegments(t *testing.T) {
	var out bytes.Buffer
	p := New(&out, chat.Tab{}, false)
	require.NoError(t, p.Print(chat.Message{Category: chat.System, Text: "Server restart in 5 min"}))
	require.Equal(t, "[System] Server restart in 5 min\n", out.String())
}

func TestPrintFiltersByTab(t *testing.T) {
	var out bytes.Buffer
	tab, ok := chat.FindTab(chat.DefaultTabs(), "Combat Log")
	require.True(t, ok)
	p := New(&out, tab, false)
	require.NoError(t, p.Print(sampleMessage()))
	require.Empty(t, out.String())
}
