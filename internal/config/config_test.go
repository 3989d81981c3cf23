package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/john/memchat/internal/layout"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MEMCHAT_CONFIG", "TWITCH_OAUTH", "AWS_ROLE_ARN", "AWS_WEB_IDENTITY_TOKEN_FILE",
		"S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY", "DATABASE_URL", "NATS_URL",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingOptionalFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), false)
	require.NoError(t, err)
	require.Equal(t, Default(), *cfg)
}

func TestLoadMissingRequiredFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), true)
	require.ErrorContains(t, err, "read config file")
}

func TestLoadOverridesLayoutPartially(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
process:
  pid: 4242
capture:
  poll_interval: 250ms
layout:
  buffer_base: 0xC00000
  slots: 30
  count_addrs: []
`)
	cfg, err := Load(path, true)
	require.NoError(t, err)
	require.Equal(t, uint32(4242), cfg.Process.PID)
	require.Equal(t, 250*time.Millisecond, cfg.Capture.PollInterval)
	require.Equal(t, 5*time.Second, cfg.Capture.PlayerInterval)
	require.Equal(t, uint64(0xC00000), cfg.Layout.BufferBase)
	require.Equal(t, 30, cfg.Layout.Slots)
	require.Equal(t, layout.Default().Stride, cfg.Layout.Stride)
	require.Empty(t, cfg.Layout.CountAddrs)
	require.Equal(t, layout.Default().Player, cfg.Layout.Player)
}

func TestLoadRejectsBadLayout(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "layout:\n  timestamp: 0x17BE\n")
	_, err := Load(path, true)
	var lerr *layout.Error
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, "timestamp", lerr.Field)
}

func TestLoadRejectsGarbage(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "process: [unclosed"), true)
	require.ErrorContains(t, err, "parse config file")
}

func TestEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TWITCH_OAUTH", "oauth:secret")
	t.Setenv("S3_ACCESS_KEY_ID", "AKIA")
	t.Setenv("S3_SECRET_ACCESS_KEY", "shh")
	t.Setenv("DATABASE_URL", "postgres://localhost/memchat")
	t.Setenv("NATS_URL", "nats://localhost:4222")

	path := writeConfig(t, `
s3:
  bucket: chat-archive
  region: eu-west-1
twitch:
  username: relaybot
  channel: mychannel
`)
	cfg, err := Load(path, true)
	require.NoError(t, err)
	require.Equal(t, "oauth:secret", cfg.Twitch.OAuth)
	require.Equal(t, "AKIA", cfg.S3.AccessKeyID)
	require.Equal(t, "shh", cfg.S3.SecretAccessKey)
	require.Equal(t, "postgres://localhost/memchat", cfg.Database.URL)
	require.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		err    string
	}{
		{"no process", func(c *Config) { c.Process.Name = "" }, "process.name"},
		{"zero poll", func(c *Config) { c.Capture.PollInterval = 0 }, "poll_interval"},
		{"recorder dir", func(c *Config) { c.Recorder.OutputDir = "" }, "recorder.output_dir"},
		{"bucket without region", func(c *Config) { c.S3.Bucket = "b" }, "s3.region"},
		{"bucket without recorder", func(c *Config) {
			c.S3.Bucket, c.S3.Region, c.Recorder.Enabled = "b", "r", false
		}, "recorder.enabled"},
		{"key without secret", func(c *Config) {
			c.S3.Bucket, c.S3.Region, c.S3.AccessKeyID = "b", "r", "k"
		}, "secret_access_key"},
		{"role without token", func(c *Config) {
			c.S3.Bucket, c.S3.Region, c.S3.RoleARN = "b", "r", "arn:aws:iam::1:role/x"
		}, "web_identity_token_file"},
		{"twitch without oauth", func(c *Config) {
			c.Twitch.Channel, c.Twitch.Username = "c", "u"
		}, "twitch.oauth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.err)
		})
	}

	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestPath(t *testing.T) {
	clearEnv(t)
	p, explicit := Path("")
	require.Equal(t, DefaultPath, p)
	require.False(t, explicit)

	t.Setenv("MEMCHAT_CONFIG", "/etc/memchat.yaml")
	p, explicit = Path("")
	require.Equal(t, "/etc/memchat.yaml", p)
	require.True(t, explicit)

	p, explicit = Path("local.yaml")
	require.Equal(t, "local.yaml", p)
	require.True(t, explicit)
}
