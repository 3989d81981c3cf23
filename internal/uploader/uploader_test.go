package uploader

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	mu    sync.Mutex
	fail  int
	calls int
	puts  map[string]string
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fail {
		return nil, errors.New("boom")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.puts == nil {
		f.puts = map[string]string{}
	}
	f.puts[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		file string
		want string
	}{
		{"guild_20251230_103005.jsonl", "2025/12/30/guild/guild_20251230_103005.jsonl"},
		{"channel_trade_20250102_000000.jsonl", "2025/01/02/channel_trade/channel_trade_20250102_000000.jsonl"},
	}
	for _, tt := range tests {
		got, err := ObjectKey(tt.file)
		require.NoError(t, err)
		require.Equal(t, tt.want, got)
	}

	for _, bad := range []string{"guild.jsonl", "guild_2025_1030.jsonl", "_20251230_103005.jsonl", "guild_20251230_103005.txt"} {
		_, err := ObjectKey(bad)
		require.Error(t, err, bad)
	}
}

func TestUploadRetriesThenDeletes(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "say_20251230_103005.jsonl", "{}\n")

	fake := &fakePutter{fail: 2}
	u := newWithClient(fake, Options{Bucket: "logs", MaxRetries: 3, DeleteAfter: true}, nil)
	u.backoff = time.Millisecond

	require.True(t, u.uploadWithRetry(context.Background(), path))
	require.Equal(t, 3, fake.calls)
	require.Equal(t, "{}\n", fake.puts["logs/2025/12/30/say/say_20251230_103005.jsonl"])
	require.NoFileExists(t, path)
}

func TestUploadGivesUp(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "say_20251230_103005.jsonl", "{}\n")

	fake := &fakePutter{fail: 100}
	u := newWithClient(fake, Options{Bucket: "logs", MaxRetries: 2, DeleteAfter: true}, nil)
	u.backoff = time.Millisecond

	require.False(t, u.uploadWithRetry(context.Background(), path))
	require.Equal(t, 3, fake.calls)
	require.FileExists(t, path)
}

func TestStartUploadsQueuedFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "guild_20251230_103005.jsonl", "a\n")
	b := writeFile(t, dir, "party_20251230_103005.jsonl", "b\n")

	fake := &fakePutter{}
	u := newWithClient(fake, Options{Bucket: "logs"}, nil)

	files := make(chan string, 2)
	files <- a
	files <- b
	close(files)
	require.NoError(t, u.Start(context.Background(), files))
	require.Len(t, fake.puts, 2)
	require.FileExists(t, a, "files are kept unless DeleteAfter is set")
}

func TestScanAndUploadExisting(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "guild_20251230_103005.jsonl", "a\n")
	writeFile(t, dir, "notes.txt", "skip\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.jsonl"), 0o755))

	fake := &fakePutter{}
	u := newWithClient(fake, Options{Bucket: "logs"}, nil)
	require.NoError(t, u.ScanAndUploadExisting(context.Background(), dir))
	u.wg.Wait()
	require.Equal(t, 1, fake.calls)

	require.Error(t, u.ScanAndUploadExisting(context.Background(), filepath.Join(dir, "missing")))
}
