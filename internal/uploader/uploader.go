// Package uploader archives rotated JSONL files to S3 or an S3-compatible
// store.
package uploader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/john/memchat/internal/recorder"
)

// objectPutter is the part of the S3 client the uploader needs.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Options configures the S3 client and upload behaviour.
type Options struct {
	Bucket   string
	Region   string
	Endpoint string // For S3-compatible services; enables path-style addressing

	// Credentials, in order of preference: static keys, a role assumed
	// with a web identity token file, the default chain.
	AccessKeyID          string
	SecretAccessKey      string
	RoleARN              string
	WebIdentityTokenFile string

	DeleteAfter bool
	MaxRetries  int
}

// Uploader handles uploading completed log files to S3
type Uploader struct {
	client      objectPutter
	bucket      string
	deleteAfter bool
	maxRetries  int
	backoff     time.Duration
	log         *slog.Logger
	wg          sync.WaitGroup
}

// New creates an uploader from opts.
func New(ctx context.Context, opts Options, log *slog.Logger) (*Uploader, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	if opts.AccessKeyID == "" && opts.RoleARN != "" && opts.WebIdentityTokenFile != "" {
		provider := stscreds.NewWebIdentityRoleProvider(
			sts.NewFromConfig(cfg),
			opts.RoleARN,
			stscreds.IdentityTokenFile(opts.WebIdentityTokenFile),
			func(o *stscreds.WebIdentityRoleOptions) { o.RoleSessionName = "memchat" },
		)
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newWithClient(client, opts, log), nil
}

func newWithClient(client objectPutter, opts Options, log *slog.Logger) *Uploader {
	if log == nil {
		log = slog.Default()
	}
	return &Uploader{
		client:      client,
		bucket:      opts.Bucket,
		deleteAfter: opts.DeleteAfter,
		maxRetries:  opts.MaxRetries,
		backoff:     time.Second,
		log:         log.With("component", "uploader"),
	}
}

// ScanAndUploadExisting uploads .jsonl files left over from earlier runs.
func (u *Uploader) ScanAndUploadExisting(ctx context.Context, outputDir string) error {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return fmt.Errorf("read directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".jsonl") {
			files = append(files, filepath.Join(outputDir, entry.Name()))
		}
	}
	if len(files) == 0 {
		u.log.Debug("no leftover files to upload", "dir", outputDir)
		return nil
	}

	u.log.Info("uploading leftover files", "count", len(files))
	for _, path := range files {
		u.wg.Add(1)
		go func() {
			defer u.wg.Done()
			u.uploadWithRetry(ctx, path)
		}()
	}
	return nil
}

// Start uploads every path received on fileChan until ctx is done or the
// channel closes, then waits for in-flight uploads.
func (u *Uploader) Start(ctx context.Context, fileChan <-chan string) error {
	defer u.wg.Wait()
	for {
		select {
		case path, ok := <-fileChan:
			if !ok {
				return nil
			}
			u.wg.Add(1)
			go func() {
				defer u.wg.Done()
				u.uploadWithRetry(ctx, path)
			}()

		case <-ctx.Done():
			u.log.Info("uploader shutting down")
			return ctx.Err()
		}
	}
}

// uploadWithRetry retries with exponential backoff and reports whether the
// file made it.
func (u *Uploader) uploadWithRetry(ctx context.Context, localPath string) bool {
	filename := filepath.Base(localPath)

	key, err := ObjectKey(filename)
	if err != nil {
		u.log.Error("build object key", "file", filename, "err", err)
		return false
	}

	for attempt := 0; attempt <= u.maxRetries; attempt++ {
		err := u.uploadFile(ctx, localPath, key)
		if err == nil {
			u.log.Info("uploaded file", "file", filename, "bucket", u.bucket, "key", key)
			if u.deleteAfter {
				if err := os.Remove(localPath); err != nil {
					u.log.Error("delete local file", "file", localPath, "err", err)
				}
			}
			return true
		}

		if attempt < u.maxRetries {
			wait := u.backoff << attempt
			u.log.Warn("upload failed, retrying",
				"file", filename, "attempt", attempt+1, "max", u.maxRetries, "in", wait, "err", err)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return false
			}
		}
	}

	u.log.Error("giving up on upload", "file", filename, "attempts", u.maxRetries+1)
	return false
}

func (u *Uploader) uploadFile(ctx context.Context, localPath, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// ObjectKey maps a log file name to its archive key.
// Input: channel_trade_20251230_103005.jsonl
// Output: 2025/12/30/channel_trade/channel_trade_20251230_103005.jsonl
func ObjectKey(filename string) (string, error) {
	name := strings.TrimSuffix(filename, ".jsonl")

	// Streams may contain underscores, so parse from the end.
	parts := strings.Split(name, "_")
	if len(parts) < 3 || name == filename {
		return "", fmt.Errorf("invalid filename format: %s", filename)
	}
	stream := strings.Join(parts[:len(parts)-2], "_")
	if stream == "" {
		return "", fmt.Errorf("invalid filename format: %s", filename)
	}
	stamp := parts[len(parts)-2] + "_" + parts[len(parts)-1]

	t, err := time.Parse(recorder.FileTimeLayout, stamp)
	if err != nil {
		return "", fmt.Errorf("parse timestamp: %w", err)
	}

	return fmt.Sprintf("%04d/%02d/%02d/%s/%s", t.Year(), t.Month(), t.Day(), stream, filename), nil
}
