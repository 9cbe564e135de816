// Package config handles YAML config file loading for the voicepost server.
//
// All values may reference environment variables using ${VAR} or
// ${VAR:-default} syntax; secrets (SMTP password, API key) are expected
// to arrive that way rather than being written into the file.
// CLI flags always override config values.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Delivery backend names accepted in the config file.
const (
	BackendSMTP       = "smtp"
	BackendAPI        = "api"
	BackendMediaStore = "mediastore"
)

// Notifier type names accepted in the config file.
const (
	NotifierWebhook = "webhook"
	NotifierRedis   = "redis"
	NotifierNone    = "none"
)

// Config represents a voicepost.yaml configuration file.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upload    UploadConfig    `yaml:"upload"`
	Transcode TranscodeConfig `yaml:"transcode"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	CORSOrigins     []string `yaml:"cors_origins"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// UploadConfig holds the upload receiver settings.
type UploadConfig struct {
	// Dir is the temp directory for uploaded assets, created lazily on first use.
	Dir string `yaml:"dir"`
	// Field is the multipart form field carrying the audio bytes.
	Field string `yaml:"field"`
	// MaxBytes caps the accepted upload size. Zero means no cap.
	MaxBytes int64 `yaml:"max_bytes"`
}

// TranscodeConfig holds the optional transcoding step settings.
type TranscodeConfig struct {
	Enabled    bool     `yaml:"enabled"`
	FFmpegPath string   `yaml:"ffmpeg_path"`
	Format     string   `yaml:"format"`
	Bitrate    string   `yaml:"bitrate"`
	Timeout    Duration `yaml:"timeout"`
}

// DeliveryConfig selects and configures the outbound delivery backend.
type DeliveryConfig struct {
	// Backend is one of smtp, api, mediastore.
	Backend    string   `yaml:"backend"`
	Recipient  string   `yaml:"recipient"`
	SenderName string   `yaml:"sender_name"`
	SenderAddr string   `yaml:"sender_addr"`
	Subject    string   `yaml:"subject"`
	Timeout    Duration `yaml:"timeout"`

	SMTP       SMTPConfig       `yaml:"smtp"`
	API        APIConfig        `yaml:"api"`
	MediaStore MediaStoreConfig `yaml:"mediastore"`

	// LinkMailer selects how the mediastore backend sends its link email:
	// api or smtp. Ignored by the other backends.
	LinkMailer string `yaml:"link_mailer"`
}

// SMTPConfig holds authenticated mail transport settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// APIConfig holds transactional email API settings.
type APIConfig struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
}

// MediaStoreConfig holds object store settings for the upload-then-link backend.
type MediaStoreConfig struct {
	// Bucket is the bucket name (required when the backend is mediastore).
	Bucket string `yaml:"bucket"`
	// Prefix is the key prefix within the bucket (optional).
	Prefix string `yaml:"prefix"`
	// Region is the AWS region (optional, uses default chain if empty).
	Region string `yaml:"region"`
	// Endpoint is a custom endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string `yaml:"endpoint"`
	// PathStyle forces path-style addressing (bucket in path, not subdomain).
	// Required by most S3-compatible providers.
	PathStyle bool `yaml:"path_style"`
	// PublicBaseURL overrides the base used to build the emailed link,
	// e.g. a CDN domain in front of the bucket.
	PublicBaseURL string `yaml:"public_base_url"`
}

// NotifyConfig configures the optional delivery notification publisher.
type NotifyConfig struct {
	// Type is one of webhook, redis, none. Empty disables notifications.
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// ApplyDefaults fills unset values with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout.Duration == 0 {
		c.Server.ShutdownTimeout.Duration = 10 * time.Second
	}
	if c.Upload.Dir == "" {
		c.Upload.Dir = "uploads"
	}
	if c.Upload.Field == "" {
		c.Upload.Field = "voice"
	}
	if c.Transcode.FFmpegPath == "" {
		c.Transcode.FFmpegPath = "ffmpeg"
	}
	if c.Transcode.Format == "" {
		c.Transcode.Format = "mp3"
	}
	if c.Transcode.Bitrate == "" {
		c.Transcode.Bitrate = "128k"
	}
	if c.Transcode.Timeout.Duration == 0 {
		c.Transcode.Timeout.Duration = 2 * time.Minute
	}
	if c.Delivery.Subject == "" {
		c.Delivery.Subject = "New voice message"
	}
	if c.Delivery.SenderName == "" {
		c.Delivery.SenderName = "Voice Message"
	}
	if c.Delivery.Timeout.Duration == 0 {
		c.Delivery.Timeout.Duration = 30 * time.Second
	}
	if c.Delivery.SMTP.Port == 0 {
		c.Delivery.SMTP.Port = 587
	}
	if c.Delivery.LinkMailer == "" {
		c.Delivery.LinkMailer = BackendAPI
	}
}

// Validate checks that the configuration is complete enough to start.
func (c *Config) Validate() error {
	if c.Delivery.Recipient == "" {
		return errors.New("delivery.recipient is required")
	}
	if c.Delivery.SenderAddr == "" {
		return errors.New("delivery.sender_addr is required")
	}

	switch c.Delivery.Backend {
	case BackendSMTP:
		return c.validateSMTP()
	case BackendAPI:
		return c.validateAPI()
	case BackendMediaStore:
		if c.Delivery.MediaStore.Bucket == "" {
			return errors.New("delivery.mediastore.bucket is required")
		}
		switch c.Delivery.LinkMailer {
		case BackendAPI:
			return c.validateAPI()
		case BackendSMTP:
			return c.validateSMTP()
		default:
			return fmt.Errorf("delivery.link_mailer must be %q or %q, got %q",
				BackendAPI, BackendSMTP, c.Delivery.LinkMailer)
		}
	case "":
		return errors.New("delivery.backend is required")
	default:
		return fmt.Errorf("unknown delivery.backend %q", c.Delivery.Backend)
	}
}

func (c *Config) validateSMTP() error {
	if c.Delivery.SMTP.Host == "" {
		return errors.New("delivery.smtp.host is required")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.Delivery.API.URL == "" {
		return errors.New("delivery.api.url is required")
	}
	if c.Delivery.API.Key == "" {
		return errors.New("delivery.api.key is required")
	}
	return nil
}
