package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/john/memchat/internal/message"
)

func readRecords(t *testing.T, path string) []message.Record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []message.Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec message.Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		out = append(out, rec)
	}
	require.NoError(t, sc.Err())
	return out
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestFileName(t *testing.T) {
	ts := time.Date(2025, 12, 30, 10, 30, 5, 0, time.UTC)
	require.Equal(t, "channel_trade_20251230_103005.jsonl", FileName("channel_trade", ts))
}

func TestRecorderWritesPerStreamAndFlushesOnShutdown(t *testing.T) {
	dir := t.TempDir()
	rec := New(dir, 10, 60, 100, nil)
	start := time.Date(2025, 12, 30, 10, 30, 0, 0, time.UTC)
	rec.now = fixedClock(start)

	records := make(chan message.Record)
	files := make(chan string, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Start(ctx, records, files) }()

	records <- message.Record{ID: 1, Stream: "guild", Text: "a"}
	records <- message.Record{ID: 2, Stream: "party", Text: "b"}
	records <- message.Record{ID: 3, Stream: "guild", Text: "c"}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(files)
	var got []string
	for f := range files {
		got = append(got, filepath.Base(f))
	}
	require.ElementsMatch(t, []string{"guild_20251230_103000.jsonl", "party_20251230_103000.jsonl"}, got)

	guild := readRecords(t, filepath.Join(dir, "guild_20251230_103000.jsonl"))
	require.Len(t, guild, 2)
	require.Equal(t, "a", guild[0].Text)
	require.Equal(t, "c", guild[1].Text)
}

func TestRecorderStopsWhenInputCloses(t *testing.T) {
	dir := t.TempDir()
	rec := New(dir, 1, 60, 100, nil)

	records := make(chan message.Record, 1)
	records <- message.Record{ID: 1, Stream: "say", Text: "hi"}
	close(records)

	require.NoError(t, rec.Start(context.Background(), records, nil))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Len(t, readRecords(t, filepath.Join(dir, entries[0].Name())), 1)
}

func TestRotationBySize(t *testing.T) {
	dir := t.TempDir()
	rec := New(dir, 1, 60, 100, nil)
	rec.rotateBytes = 10
	first := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rec.now = fixedClock(first)

	require.NoError(t, rec.record(message.Record{ID: 1, Stream: "say", Text: "long enough"}))

	files := make(chan string, 1)
	rec.checkRotation(files)
	require.Equal(t, filepath.Join(dir, "say_20250102_030405.jsonl"), <-files)
	require.Empty(t, rec.currentFiles)

	rec.now = fixedClock(first.Add(time.Second))
	require.NoError(t, rec.record(message.Record{ID: 2, Stream: "say", Text: "next"}))
	require.Equal(t, "say_20250102_030406.jsonl", rec.currentFiles["say"].filename)
	rec.flushAll(nil)
}

func TestRotationByTime(t *testing.T) {
	dir := t.TempDir()
	rec := New(dir, 100, 60, 100, nil)
	start := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rec.now = fixedClock(start)
	require.NoError(t, rec.record(message.Record{ID: 1, Stream: "raid", Text: "pull"}))

	files := make(chan string, 1)
	rec.now = fixedClock(start.Add(59 * time.Minute))
	rec.checkRotation(files)
	require.Len(t, files, 0)

	rec.now = fixedClock(start.Add(time.Hour))
	rec.checkRotation(files)
	path := <-files
	require.Len(t, readRecords(t, path), 1, "buffered records are flushed before rotation")
}

func TestFullUploadQueueDoesNotBlock(t *testing.T) {
	dir := t.TempDir()
	rec := New(dir, 100, 60, 100, nil)
	require.NoError(t, rec.record(message.Record{ID: 1, Stream: "a"}))
	require.NoError(t, rec.record(message.Record{ID: 2, Stream: "b"}))

	files := make(chan string)
	rec.flushAll(files)
	require.Empty(t, rec.currentFiles)
}
