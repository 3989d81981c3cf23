package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gempir/go-twitch-irc/v4"
	"github.com/stretchr/testify/require"

	"github.com/john/memchat/internal/chat"
	"github.com/john/memchat/internal/message"
)

type fakeClient struct {
	mu           sync.Mutex
	joined       []string
	said         []string
	disconnected bool
}

func (f *fakeClient) OnConnect(func()) {}
func (f *fakeClient) OnReconnectMessage(func(twitch.ReconnectMessage)) {}
func (f *fakeClient) Connect() error { return nil }

func (f *fakeClient) Join(channels ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, channels...)
}

func (f *fakeClient) Say(channel, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.said = append(f.said, channel+": "+text)
}

func (f *fakeClient) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
	return nil
}

func groupTab() chat.Tab {
	tab, _ := chat.FindTab(chat.DefaultTabs(), "Group")
	return tab
}

func TestRelayFiltersByTab(t *testing.T) {
	fc := &fakeClient{}
	r := newWithClient(fc, "#MyChannel", groupTab(), 100, 0, nil)

	records := make(chan message.Record, 3)
	records <- message.Record{Code: uint32(chat.Party), Line: "[Party] Bob: inc"}
	records <- message.Record{Code: uint32(chat.Guild), Line: "[Guild] Amy: hi"}
	records <- message.Record{Code: uint32(chat.Raid), Line: "[Raid] Bob:\tpull\n now"}
	close(records)

	require.NoError(t, r.Start(context.Background(), records))
	require.Equal(t, []string{"mychannel"}, fc.joined)
	require.Equal(t, []string{"mychannel: [Party] Bob: inc", "mychannel: [Raid] Bob: pull now"}, fc.said)
	require.True(t, fc.disconnected)
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	require.Equal(t, "ünï...", truncate("ünïcødé", 6))
	require.Equal(t, "ab", truncate("abcdef", 2))
	require.Equal(t, "abcdef", truncate("abcdef", 0))
}

func TestWaitHonoursMinInterval(t *testing.T) {
	r := newWithClient(&fakeClient{}, "c", chat.Tab{}, 100, time.Hour, nil)
	require.NoError(t, r.wait(context.Background()), "first line is not delayed")

	r.lastSent = time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, r.wait(ctx), context.DeadlineExceeded)

	r.lastSent = time.Now().Add(-2 * time.Hour)
	require.NoError(t, r.wait(context.Background()))
}
