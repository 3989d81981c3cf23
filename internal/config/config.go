// Package config loads the memchat YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/john/memchat/internal/layout"
)

// DefaultPath is used when neither --config nor MEMCHAT_CONFIG is set.
const DefaultPath = "config.yaml"

// Config holds the application configuration
type Config struct {
	Process  ProcessConfig  `yaml:"process"`
	Capture  CaptureConfig  `yaml:"capture"`
	Layout   layout.Layout  `yaml:"layout"`
	Logging  LoggingConfig  `yaml:"logging"`
	Status   StatusConfig   `yaml:"status"`
	Recorder RecorderConfig `yaml:"recorder"`
	S3       S3Config       `yaml:"s3"`
	Uploader UploaderConfig `yaml:"uploader"`
	NATS     NATSConfig     `yaml:"nats"`
	Database DatabaseConfig `yaml:"database"`
	Twitch   TwitchConfig   `yaml:"twitch"`
}

// ProcessConfig selects the game client. PID wins over Name.
type ProcessConfig struct {
	Name string `yaml:"name"`
	PID  uint32 `yaml:"pid"`
}

// CaptureConfig holds the polling cadence
type CaptureConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval"`
	PlayerInterval   time.Duration `yaml:"player_interval"`
	ReattachInterval time.Duration `yaml:"reattach_interval"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// StatusConfig holds the HTTP status server settings
type StatusConfig struct {
	Addr string `yaml:"addr"` // Empty disables the server
}

// RecorderConfig holds recorder configuration
type RecorderConfig struct {
	Enabled         bool   `yaml:"enabled"`
	OutputDir       string `yaml:"output_dir"`
	RotateMinutes   int    `yaml:"rotate_minutes"`
	RotateMegabytes int    `yaml:"rotate_megabytes"`
	BufferSize      int    `yaml:"buffer_size"`
}

// S3Config holds S3 upload configuration. Uploads are off without a bucket.
type S3Config struct {
	Bucket               string `yaml:"bucket"`
	Region               string `yaml:"region"`
	RoleARN              string `yaml:"role_arn"`                // Role assumed with the web identity token
	WebIdentityTokenFile string `yaml:"web_identity_token_file"` // OIDC token file for role_arn
	AccessKeyID          string `yaml:"access_key_id"`           // Static credentials
	SecretAccessKey      string `yaml:"secret_access_key"`       // Static credentials
	Endpoint             string `yaml:"endpoint"`                // For S3-compatible services
}

// UploaderConfig holds uploader configuration
type UploaderConfig struct {
	DeleteAfterUpload bool `yaml:"delete_after_upload"`
	MaxRetries        int  `yaml:"max_retries"`
}

// NATSConfig enables publishing when URL is set.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// DatabaseConfig enables the PostgreSQL history store when URL is set.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// TwitchConfig enables the relay when Channel is set.
type TwitchConfig struct {
	Username    string        `yaml:"username"`
	OAuth       string        `yaml:"oauth"`
	Channel     string        `yaml:"channel"`
	Tab         string        `yaml:"tab"`          // Chat tab whose messages are relayed
	MaxLine     int           `yaml:"max_line"`     // Longer lines are cut
	MinInterval time.Duration `yaml:"min_interval"` // Spacing between relayed lines
}

// Default returns a configuration that captures from Wow.exe with the
// 3.3.5a layout and records to ./data.
func Default() Config {
	return Config{
		Process: ProcessConfig{Name: "Wow.exe"},
		Capture: CaptureConfig{
			PollInterval:     100 * time.Millisecond,
			PlayerInterval:   5 * time.Second,
			ReattachInterval: 3 * time.Second,
		},
		Layout:  layout.Default(),
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Status:  StatusConfig{Addr: ":8080"},
		Recorder: RecorderConfig{
			Enabled:         true,
			OutputDir:       "./data",
			RotateMinutes:   60,
			RotateMegabytes: 100,
			BufferSize:      100,
		},
		Uploader: UploaderConfig{DeleteAfterUpload: true, MaxRetries: 3},
		NATS:     NATSConfig{SubjectPrefix: "memchat.chat"},
		Twitch: TwitchConfig{
			Tab:         "General",
			MaxLine:     450,
			MinInterval: 1500 * time.Millisecond,
		},
	}
}

// Path returns the config file to read: flag, then MEMCHAT_CONFIG, then
// DefaultPath. explicit reports whether the user named a file.
func Path(flag string) (path string, explicit bool) {
	if flag != "" {
		return flag, true
	}
	if env := os.Getenv("MEMCHAT_CONFIG"); env != "" {
		return env, true
	}
	return DefaultPath, false
}

// Load reads path over the defaults. A missing file is only an error when
// required is set.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv applies environment variable overrides for secrets and
// endpoints.
func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.Twitch.OAuth, "TWITCH_OAUTH")
	set(&cfg.S3.RoleARN, "AWS_ROLE_ARN")
	set(&cfg.S3.WebIdentityTokenFile, "AWS_WEB_IDENTITY_TOKEN_FILE")
	set(&cfg.S3.AccessKeyID, "S3_ACCESS_KEY_ID")
	set(&cfg.S3.SecretAccessKey, "S3_SECRET_ACCESS_KEY")
	set(&cfg.Database.URL, "DATABASE_URL")
	set(&cfg.NATS.URL, "NATS_URL")
}

// Validate checks required fields
func (c *Config) Validate() error {
	if c.Process.PID == 0 && strings.TrimSpace(c.Process.Name) == "" {
		return fmt.Errorf("process.name or process.pid is required")
	}
	if c.Capture.PollInterval <= 0 {
		return fmt.Errorf("capture.poll_interval must be positive")
	}
	if c.Capture.ReattachInterval <= 0 {
		return fmt.Errorf("capture.reattach_interval must be positive")
	}
	if err := c.Layout.Validate(); err != nil {
		return err
	}

	if c.Recorder.Enabled {
		if c.Recorder.OutputDir == "" {
			return fmt.Errorf("recorder.output_dir is required")
		}
		if c.Recorder.BufferSize <= 0 || c.Recorder.RotateMinutes <= 0 || c.Recorder.RotateMegabytes <= 0 {
			return fmt.Errorf("recorder buffer_size, rotate_minutes and rotate_megabytes must be positive")
		}
	}

	if c.S3.Bucket != "" {
		if !c.Recorder.Enabled {
			return fmt.Errorf("s3.bucket requires recorder.enabled")
		}
		if c.S3.Region == "" {
			return fmt.Errorf("s3.region is required")
		}
		if c.S3.AccessKeyID != "" && c.S3.SecretAccessKey == "" {
			return fmt.Errorf("s3.secret_access_key is required when using access_key_id")
		}
		if c.S3.RoleARN != "" && c.S3.WebIdentityTokenFile == "" && c.S3.AccessKeyID == "" {
			return fmt.Errorf("s3.web_identity_token_file is required with s3.role_arn (or set AWS_WEB_IDENTITY_TOKEN_FILE)")
		}
		if c.Uploader.MaxRetries < 0 {
			return fmt.Errorf("uploader.max_retries must not be negative")
		}
	}

	if c.Twitch.Channel != "" {
		if c.Twitch.Username == "" {
			return fmt.Errorf("twitch.username is required")
		}
		if c.Twitch.OAuth == "" {
			return fmt.Errorf("twitch.oauth is required (or set TWITCH_OAUTH env var)")
		}
		if c.Twitch.MaxLine <= 0 {
			return fmt.Errorf("twitch.max_line must be positive")
		}
	}
	return nil
}
