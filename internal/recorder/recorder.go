// Package recorder appends message records to JSONL files, one file per
// stream, and hands rotated files to the uploader.
package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/john/memchat/internal/message"
)

// FileTimeLayout is the timestamp part of a log file name.
const FileTimeLayout = "20060102_150405"

// fileWriter manages a single JSONL file
type fileWriter struct {
	file          *os.File
	writer        *bufio.Writer
	createdAt     time.Time
	bytesWritten  int64
	messageBuffer []message.Record
	stream        string
	filename      string
}

// Recorder handles buffering and writing records to disk
type Recorder struct {
	outputDir     string
	bufferSize    int
	rotateAfter   time.Duration
	rotateBytes   int64
	checkInterval time.Duration
	log           *slog.Logger
	now           func() time.Time

	currentFiles map[string]*fileWriter // key: stream
	mu           sync.Mutex
}

// New creates a new recorder
func New(outputDir string, bufferSize, rotateMinutes, rotateMegabytes int, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		outputDir:     outputDir,
		bufferSize:    max(bufferSize, 1),
		rotateAfter:   time.Duration(rotateMinutes) * time.Minute,
		rotateBytes:   int64(rotateMegabytes) * 1024 * 1024,
		checkInterval: time.Minute,
		log:           log.With("component", "recorder"),
		now:           time.Now,
		currentFiles:  make(map[string]*fileWriter),
	}
}

// Start records until ctx is done, then flushes and closes every file.
// Closed files are sent on fileChan; fileChan may be nil when nothing is
// uploaded.
func (r *Recorder) Start(ctx context.Context, records <-chan message.Record, fileChan chan<- string) error {
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	ticker := time.NewTicker(r.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-records:
			if !ok {
				r.flushAll(fileChan)
				return nil
			}
			if err := r.record(rec); err != nil {
				r.log.Error("record message", "stream", rec.Stream, "err", err)
			}

		case <-ticker.C:
			r.checkRotation(fileChan)

		case <-ctx.Done():
			r.log.Info("recorder shutting down, flushing buffers")
			r.flushAll(fileChan)
			return ctx.Err()
		}
	}
}

func (r *Recorder) record(rec message.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fw := r.currentFiles[rec.Stream]
	if fw == nil {
		var err error
		fw, err = r.createFileWriter(rec.Stream)
		if err != nil {
			return fmt.Errorf("create file writer: %w", err)
		}
		r.currentFiles[rec.Stream] = fw
	}

	fw.messageBuffer = append(fw.messageBuffer, rec)
	if len(fw.messageBuffer) >= r.bufferSize {
		if err := r.flushFileWriter(fw); err != nil {
			return fmt.Errorf("flush buffer: %w", err)
		}
	}
	return nil
}

// FileName returns the log file name for stream opened at t.
func FileName(stream string, t time.Time) string {
	return fmt.Sprintf("%s_%s.jsonl", stream, t.UTC().Format(FileTimeLayout))
}

func (r *Recorder) createFileWriter(stream string) (*fileWriter, error) {
	now := r.now()
	filename := FileName(stream, now)
	path := filepath.Join(r.outputDir, filename)

	// Append so a restart within the same second keeps earlier lines.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	r.log.Info("created log file", "file", filename)

	return &fileWriter{
		file:          file,
		writer:        bufio.NewWriter(file),
		createdAt:     now,
		messageBuffer: make([]message.Record, 0, r.bufferSize),
		stream:        stream,
		filename:      filename,
	}, nil
}

// flushFileWriter writes buffered records to disk
func (r *Recorder) flushFileWriter(fw *fileWriter) error {
	for _, rec := range fw.messageBuffer {
		data, err := json.Marshal(rec)
		if err != nil {
			r.log.Error("marshal record", "id", rec.ID, "err", err)
			continue
		}

		n, err := fw.writer.Write(data)
		if err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		fw.bytesWritten += int64(n)

		if err := fw.writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
		fw.bytesWritten++
	}

	fw.messageBuffer = fw.messageBuffer[:0]
	return fw.writer.Flush()
}

func (r *Recorder) checkRotation(fileChan chan<- string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, fw := range r.currentFiles {
		switch {
		case r.rotateAfter > 0 && r.now().Sub(fw.createdAt) >= r.rotateAfter:
			r.log.Info("rotating file", "file", fw.filename, "reason", "time")
		case r.rotateBytes > 0 && fw.bytesWritten >= r.rotateBytes:
			r.log.Info("rotating file", "file", fw.filename, "reason", "size")
		default:
			continue
		}
		r.closeFile(fw, fileChan)
		// The next record for this stream opens a fresh file.
		delete(r.currentFiles, key)
	}
}

func (r *Recorder) closeFile(fw *fileWriter, fileChan chan<- string) {
	if err := r.flushFileWriter(fw); err != nil {
		r.log.Error("flush file", "file", fw.filename, "err", err)
	}
	if err := fw.file.Close(); err != nil {
		r.log.Error("close file", "file", fw.filename, "err", err)
	}
	if fileChan == nil {
		return
	}

	path := filepath.Join(r.outputDir, fw.filename)
	select {
	case fileChan <- path:
		r.log.Debug("queued file for upload", "file", fw.filename)
	default:
		r.log.Warn("upload queue full, file will be uploaded on next start", "file", fw.filename)
	}
}

func (r *Recorder) flushAll(fileChan chan<- string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, fw := range r.currentFiles {
		r.closeFile(fw, fileChan)
		delete(r.currentFiles, key)
	}
	r.log.Info("all files flushed and closed")
}
