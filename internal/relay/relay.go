// Package relay forwards captured chat lines to a Twitch channel.
package relay

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gempir/go-twitch-irc/v4"

	"github.com/john/memchat/internal/chat"
	"github.com/john/memchat/internal/message"
)

// ircClient is the part of *twitch.Client the relay uses.
type ircClient interface {
	OnConnect(func())
	OnReconnectMessage(func(twitch.ReconnectMessage))
	Join(channels ...string)
	Say(channel, text string)
	Connect() error
	Disconnect() error
}

// Relay says every record matching its tab in one channel, no more often
// than minInterval.
type Relay struct {
	client      ircClient
	channel     string
	tab         chat.Tab
	maxLine     int
	minInterval time.Duration
	log         *slog.Logger

	lastSent time.Time
	now      func() time.Time
}

// New creates a relay for channel. username and oauth are the bot account's
// credentials.
func New(username, oauth, channel string, tab chat.Tab, maxLine int, minInterval time.Duration, log *slog.Logger) *Relay {
	return newWithClient(twitch.NewClient(username, oauth), channel, tab, maxLine, minInterval, log)
}

func newWithClient(c ircClient, channel string, tab chat.Tab, maxLine int, minInterval time.Duration, log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{
		client:      c,
		channel:     strings.TrimPrefix(strings.ToLower(channel), "#"),
		tab:         tab,
		maxLine:     maxLine,
		minInterval: minInterval,
		log:         log.With("component", "relay"),
		now:         time.Now,
	}
}

// Start connects and relays until ctx is done or records closes.
func (r *Relay) Start(ctx context.Context, records <-chan message.Record) error {
	r.client.OnConnect(func() {
		r.log.Info("connected to Twitch IRC", "channel", r.channel)
	})
	r.client.OnReconnectMessage(func(twitch.ReconnectMessage) {
		r.log.Info("reconnecting to Twitch IRC")
	})
	r.client.Join(r.channel)

	go func() {
		if err := r.client.Connect(); err != nil && ctx.Err() == nil {
			r.log.Error("Twitch IRC connection error", "err", err)
		}
	}()
	defer func() {
		r.log.Info("disconnecting from Twitch IRC")
		if err := r.client.Disconnect(); err != nil {
			r.log.Debug("disconnect", "err", err)
		}
	}()

	for {
		select {
		case rec, ok := <-records:
			if !ok {
				return nil
			}
			line, ok := r.format(rec)
			if !ok {
				continue
			}
			if err := r.wait(ctx); err != nil {
				return err
			}
			r.client.Say(r.channel, line)
			r.lastSent = r.now()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// format returns the line to send, or false if the record is filtered out.
func (r *Relay) format(rec message.Record) (string, bool) {
	if !r.tab.Matches(chat.CategoryFromCode(rec.Code)) {
		return "", false
	}
	line := strings.Join(strings.Fields(rec.Line), " ")
	if line == "" {
		return "", false
	}
	return truncate(line, r.maxLine), true
}

// wait blocks until minInterval has passed since the last line.
func (r *Relay) wait(ctx context.Context) error {
	if r.lastSent.IsZero() {
		return nil
	}
	d := r.minInterval - r.now().Sub(r.lastSent)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// truncate cuts s to at most n runes, ending with "..." when cut.
func truncate(s string, n int) string {
	rs := []rune(s)
	if n <= 0 || len(rs) <= n {
		return s
	}
	if n <= 3 {
		return string(rs[:n])
	}
	return string(rs[:n-3]) + "..."
}
