package store

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/john/memchat/internal/message"
)

func TestInsertArgs(t *testing.T) {
	session := uuid.New()
	rec := message.Record{
		Session:    session,
		ID:         9,
		ObservedAt: "2025-12-30T10:30:00Z",
		Category:   "Guild",
		Code:       4,
		Stream:     "guild",
		Text:       "hi",
		Line:       "[Guild] hi",
		Links:      []message.Link{{Kind: "item", ID: 1, Name: "x", URL: "u"}},
	}

	args, err := insertArgs(rec)
	require.NoError(t, err)
	require.Len(t, args, 15)
	require.Equal(t, pgtype.UUID{Bytes: session, Valid: true}, args[0])
	require.Equal(t, int64(9), args[1])
	require.Equal(t, time.Date(2025, 12, 30, 10, 30, 0, 0, time.UTC), args[2])
	require.JSONEq(t, `[{"kind":"item","id":1,"name":"x","url":"u"}]`, string(args[14].([]byte)))
}

func TestInsertArgsWithoutLinks(t *testing.T) {
	args, err := insertArgs(message.Record{ObservedAt: "2025-12-30T10:30:00Z"})
	require.NoError(t, err)
	require.Nil(t, args[14])
}

func TestInsertArgsBadTime(t *testing.T) {
	_, err := insertArgs(message.Record{ObservedAt: "yesterday"})
	require.ErrorContains(t, err, "observed_at")
}

type batchRecorder struct {
	ids  []uint64
	errs []error
}

func (b *batchRecorder) insert(ctx context.Context, recs []message.Record) error {
	b.errs = append(b.errs, ctx.Err())
	for _, r := range recs {
		b.ids = append(b.ids, r.ID)
	}
	return ctx.Err()
}

func TestStartFlushesPendingRecordsOnShutdown(t *testing.T) {
	// Shutdown cancels the run context and then closes the channel, so
	// Start may see either one first. Both paths must write the batch.
	for range 20 {
		b := &batchRecorder{}
		s := &Store{logger: slog.Default(), insert: b.insert}

		records := make(chan message.Record, 3)
		records <- message.Record{ID: 1}
		records <- message.Record{ID: 2}
		close(records)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := s.Start(ctx, records)
		if err != nil {
			require.ErrorIs(t, err, context.Canceled)
		}
		require.Equal(t, []uint64{1, 2}, b.ids)
		for _, e := range b.errs {
			require.NoError(t, e)
		}
	}
}

func TestStartDrainsQueueWhenCancelled(t *testing.T) {
	b := &batchRecorder{}
	s := &Store{logger: slog.Default(), insert: b.insert}

	records := make(chan message.Record, 2)
	records <- message.Record{ID: 7}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Start(ctx, records)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []uint64{7}, b.ids)
	require.Equal(t, []error{nil}, b.errs)
}
