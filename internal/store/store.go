// Package store keeps message history in PostgreSQL.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/john/memchat/internal/message"
)

const (
	batchSize         = 50
	flushInterval     = 2 * time.Second
	finalFlushTimeout = 5 * time.Second
)

type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	// insert is InsertBatch outside of tests.
	insert func(ctx context.Context, recs []message.Record) error
}

func New(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{pool: pool, logger: logger.With("component", "store")}
	s.insert = s.InsertBatch
	return s, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS chat_messages (
	session      uuid        NOT NULL,
	id           bigint      NOT NULL,
	observed_at  timestamptz NOT NULL,
	category     text        NOT NULL,
	code         integer     NOT NULL,
	stream       text        NOT NULL,
	channel      integer     NOT NULL DEFAULT 0,
	channel_name text        NOT NULL DEFAULT '',
	sender_guid  text        NOT NULL DEFAULT '',
	sender       text        NOT NULL DEFAULT '',
	client_ts    bigint      NOT NULL DEFAULT 0,
	text         text        NOT NULL,
	formatted    text        NOT NULL DEFAULT '',
	line         text        NOT NULL,
	links        jsonb,
	PRIMARY KEY (session, id)
);
CREATE INDEX IF NOT EXISTS chat_messages_stream_observed ON chat_messages (stream, observed_at DESC);
`

// EnsureSchema creates the history table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const insertSQL = `
	INSERT INTO chat_messages (session, id, observed_at, category, code, stream, channel, channel_name,
		sender_guid, sender, client_ts, text, formatted, line, links)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (session, id) DO NOTHING`

// insertArgs returns the positional arguments for insertSQL.
func insertArgs(rec message.Record) ([]any, error) {
	observed, err := time.Parse(time.RFC3339, rec.ObservedAt)
	if err != nil {
		return nil, fmt.Errorf("parse observed_at: %w", err)
	}
	var links []byte
	if len(rec.Links) > 0 {
		if links, err = json.Marshal(rec.Links); err != nil {
			return nil, fmt.Errorf("marshal links: %w", err)
		}
	}
	return []any{
		pgtype.UUID{Bytes: rec.Session, Valid: true}, int64(rec.ID), observed, rec.Category, int32(rec.Code),
		rec.Stream, int32(rec.Channel), rec.ChannelName, rec.SenderGUID, rec.Sender,
		int64(rec.Timestamp), rec.Text, rec.Formatted, rec.Line, links,
	}, nil
}

// InsertBatch writes records in one round trip. Records already stored are
// skipped.
func (s *Store) InsertBatch(ctx context.Context, recs []message.Record) error {
	if len(recs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range recs {
		args, err := insertArgs(rec)
		if err != nil {
			return fmt.Errorf("record %d: %w", rec.ID, err)
		}
		batch.Queue(insertSQL, args...)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// Recent returns up to limit records for stream, newest first. An empty
// stream matches all streams.
func (s *Store) Recent(ctx context.Context, stream string, limit int) ([]message.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session, id, observed_at, category, code, stream, channel, channel_name,
			sender_guid, sender, client_ts, text, formatted, line, links
		FROM chat_messages
		WHERE $1 = '' OR stream = $1
		ORDER BY observed_at DESC, id DESC
		LIMIT $2`, stream, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	var out []message.Record
	for rows.Next() {
		var (
			rec      message.Record
			session  pgtype.UUID
			id       int64
			observed time.Time
			code     int32
			channel  int32
			clientTS int64
			links    []byte
		)
		if err := rows.Scan(&session, &id, &observed, &rec.Category, &code, &rec.Stream, &channel,
			&rec.ChannelName, &rec.SenderGUID, &rec.Sender, &clientTS, &rec.Text, &rec.Formatted,
			&rec.Line, &links); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.Session = uuid.UUID(session.Bytes)
		rec.ID = uint64(id)
		rec.ObservedAt = observed.UTC().Format(time.RFC3339)
		rec.Code = uint32(code)
		rec.Channel = uint32(channel)
		rec.Timestamp = uint32(clientTS)
		if len(links) > 0 {
			if err := json.Unmarshal(links, &rec.Links); err != nil {
				return nil, fmt.Errorf("decode links: %w", err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Start batches records into the database until ctx is done or the channel
// closes. Failed batches are logged and dropped. The last batch, including
// records still queued on the channel at shutdown, is written with a
// deadline of its own since the run context is usually cancelled by then.
func (s *Store) Start(ctx context.Context, records <-chan message.Record) error {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	pending := make([]message.Record, 0, batchSize)
	flush := func(ctx context.Context) {
		if len(pending) == 0 {
			return
		}
		if err := s.insert(ctx, pending); err != nil {
			s.logger.Error("store batch", "count", len(pending), "error", err)
		}
		pending = pending[:0]
	}

	finish := func() {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
		defer cancel()
		for {
			select {
			case rec, ok := <-records:
				if !ok {
					flush(fctx)
					return
				}
				pending = append(pending, rec)
				if len(pending) >= batchSize {
					flush(fctx)
				}
			default:
				flush(fctx)
				return
			}
		}
	}

	for {
		select {
		case rec, ok := <-records:
			if !ok {
				finish()
				return nil
			}
			pending = append(pending, rec)
			if len(pending) >= batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			finish()
			return ctx.Err()
		}
	}
}
