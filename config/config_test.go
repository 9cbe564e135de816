package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `server:
  port: 9090
  cors_origins:
    - https://app.example.com
  shutdown_timeout: 5s

upload:
  dir: /tmp/voicepost
  field: voice
  max_bytes: 10485760

transcode:
  enabled: true
  ffmpeg_path: /usr/bin/ffmpeg
  format: mp3
  bitrate: 192k
  timeout: 90s

delivery:
  backend: api
  recipient: inbox@example.com
  sender_name: Voice Message
  sender_addr: noreply@example.com
  subject: New voice message
  timeout: 20s
  api:
    url: https://api.brevo.com/v3/smtp/email
    key: key123

notify:
  type: webhook
  url: https://hooks.example.com/voicepost
  headers:
    Authorization: Bearer token123
  timeout: 10s
  retries: 3
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port: got %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout.Duration != 5*time.Second {
		t.Errorf("shutdown_timeout: got %v", cfg.Server.ShutdownTimeout.Duration)
	}
	assertEqual(t, "upload.dir", cfg.Upload.Dir, "/tmp/voicepost")
	assertEqual(t, "upload.field", cfg.Upload.Field, "voice")
	if cfg.Upload.MaxBytes != 10485760 {
		t.Errorf("max_bytes: got %d", cfg.Upload.MaxBytes)
	}
	if !cfg.Transcode.Enabled {
		t.Error("transcode.enabled: got false")
	}
	assertEqual(t, "transcode.bitrate", cfg.Transcode.Bitrate, "192k")
	if cfg.Transcode.Timeout.Duration != 90*time.Second {
		t.Errorf("transcode.timeout: got %v", cfg.Transcode.Timeout.Duration)
	}
	assertEqual(t, "delivery.backend", cfg.Delivery.Backend, BackendAPI)
	assertEqual(t, "delivery.recipient", cfg.Delivery.Recipient, "inbox@example.com")
	assertEqual(t, "delivery.api.url", cfg.Delivery.API.URL, "https://api.brevo.com/v3/smtp/email")
	assertEqual(t, "notify.type", cfg.Notify.Type, NotifierWebhook)
	if cfg.Notify.Headers["Authorization"] != "Bearer token123" {
		t.Errorf("notify headers: got %v", cfg.Notify.Headers)
	}
	if cfg.Notify.Retries == nil || *cfg.Notify.Retries != 3 {
		t.Errorf("notify.retries: got %v", cfg.Notify.Retries)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("VOICEPOST_API_KEY", "secret-key")

	yaml := `delivery:
  backend: api
  recipient: ${VOICEPOST_RECIPIENT:-inbox@example.com}
  api:
    url: https://api.brevo.com/v3/smtp/email
    key: ${VOICEPOST_API_KEY}
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "api.key", cfg.Delivery.API.Key, "secret-key")
	assertEqual(t, "recipient", cfg.Delivery.Recipient, "inbox@example.com")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTemp(t, "delivery: [unclosed")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestDuration_InvalidString(t *testing.T) {
	path := writeTemp(t, "transcode:\n  timeout: not-a-duration\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("port: got %d, want 8080", cfg.Server.Port)
	}
	assertEqual(t, "upload.dir", cfg.Upload.Dir, "uploads")
	assertEqual(t, "upload.field", cfg.Upload.Field, "voice")
	assertEqual(t, "ffmpeg_path", cfg.Transcode.FFmpegPath, "ffmpeg")
	assertEqual(t, "format", cfg.Transcode.Format, "mp3")
	assertEqual(t, "bitrate", cfg.Transcode.Bitrate, "128k")
	if cfg.Delivery.SMTP.Port != 587 {
		t.Errorf("smtp.port: got %d, want 587", cfg.Delivery.SMTP.Port)
	}
	assertEqual(t, "link_mailer", cfg.Delivery.LinkMailer, BackendAPI)
	if cfg.Delivery.Timeout.Duration != 30*time.Second {
		t.Errorf("delivery.timeout: got %v", cfg.Delivery.Timeout.Duration)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		cfg.Delivery.Recipient = "inbox@example.com"
		cfg.Delivery.SenderAddr = "noreply@example.com"
		cfg.ApplyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing backend",
			mutate:  func(*Config) {},
			wantErr: "delivery.backend is required",
		},
		{
			name: "missing recipient",
			mutate: func(c *Config) {
				c.Delivery.Backend = BackendSMTP
				c.Delivery.Recipient = ""
			},
			wantErr: "delivery.recipient is required",
		},
		{
			name: "missing sender",
			mutate: func(c *Config) {
				c.Delivery.Backend = BackendSMTP
				c.Delivery.SenderAddr = ""
			},
			wantErr: "delivery.sender_addr is required",
		},
		{
			name: "smtp without host",
			mutate: func(c *Config) {
				c.Delivery.Backend = BackendSMTP
			},
			wantErr: "delivery.smtp.host is required",
		},
		{
			name: "api without key",
			mutate: func(c *Config) {
				c.Delivery.Backend = BackendAPI
				c.Delivery.API.URL = "https://api.brevo.com/v3/smtp/email"
			},
			wantErr: "delivery.api.key is required",
		},
		{
			name: "mediastore without bucket",
			mutate: func(c *Config) {
				c.Delivery.Backend = BackendMediaStore
			},
			wantErr: "delivery.mediastore.bucket is required",
		},
		{
			name: "mediastore link mailer needs api config",
			mutate: func(c *Config) {
				c.Delivery.Backend = BackendMediaStore
				c.Delivery.MediaStore.Bucket = "voices"
			},
			wantErr: "delivery.api.url is required",
		},
		{
			name: "unknown backend",
			mutate: func(c *Config) {
				c.Delivery.Backend = "pigeon"
			},
			wantErr: "unknown delivery.backend",
		},
		{
			name: "valid smtp",
			mutate: func(c *Config) {
				c.Delivery.Backend = BackendSMTP
				c.Delivery.SMTP.Host = "smtp.example.com"
				c.Delivery.SMTP.Username = "user"
				c.Delivery.SMTP.Password = "pass"
			},
		},
		{
			name: "valid mediastore with smtp links",
			mutate: func(c *Config) {
				c.Delivery.Backend = BackendMediaStore
				c.Delivery.MediaStore.Bucket = "voices"
				c.Delivery.LinkMailer = BackendSMTP
				c.Delivery.SMTP.Host = "smtp.example.com"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voicepost.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
