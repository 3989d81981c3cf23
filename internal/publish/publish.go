// Package publish sends message records to NATS, one subject per stream.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/john/memchat/internal/message"
)

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

type Publisher struct {
	conn   conn
	prefix string
	logger *slog.Logger
}

func New(url, prefix string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "publish")

	nc, err := nats.Connect(url,
		nats.Name("memchat"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Publisher{conn: nc, prefix: prefix, logger: logger}, nil
}

// Subject is prefix.stream, or just the stream without a prefix.
func (p *Publisher) Subject(stream string) string {
	if p.prefix == "" {
		return stream
	}
	return p.prefix + "." + stream
}

func (p *Publisher) Publish(rec message.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return p.conn.Publish(p.Subject(rec.Stream), payload)
}

// Start publishes records until ctx is done or the channel closes, then
// drains the connection.
func (p *Publisher) Start(ctx context.Context, records <-chan message.Record) error {
	defer p.Close()
	for {
		select {
		case rec, ok := <-records:
			if !ok {
				return nil
			}
			if err := p.Publish(rec); err != nil {
				p.logger.Error("publish record", "id", rec.ID, "stream", rec.Stream, "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close drains the connection. Start calls it on return.
func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("nats drain", "error", err)
	}
}
