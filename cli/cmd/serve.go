package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/voicepost/voicepost/config"
	"github.com/voicepost/voicepost/delivery"
	"github.com/voicepost/voicepost/iox"
	"github.com/voicepost/voicepost/log"
	"github.com/voicepost/voicepost/notify"
	"github.com/voicepost/voicepost/notify/redis"
	"github.com/voicepost/voicepost/notify/webhook"
	"github.com/voicepost/voicepost/pipeline"
	"github.com/voicepost/voicepost/server"
	"github.com/voicepost/voicepost/transcode"
	"github.com/voicepost/voicepost/upload"
)

// ServeCommand returns the serve command, the long-running HTTP server.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the voice message HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				Value:   "voicepost.yaml",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Listen port (overrides config)",
			},
			&cli.StringFlag{
				Name:  "temp-dir",
				Usage: "Upload temp directory (overrides config)",
			},
		},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port := c.Int("port"); port != 0 {
		cfg.Server.Port = port
	}
	if dir := c.String("temp-dir"); dir != "" {
		cfg.Upload.Dir = dir
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := log.NewLogger()

	backend, err := buildBackend(cfg)
	if err != nil {
		return fmt.Errorf("delivery backend: %w", err)
	}

	notifier, err := buildNotifier(cfg)
	if err != nil {
		return fmt.Errorf("notifier: %w", err)
	}
	if notifier != nil {
		defer iox.DiscardClose(notifier)
	}

	var transcoder pipeline.Transcoder
	if cfg.Transcode.Enabled {
		transcoder = transcode.New(transcode.Config{
			FFmpegPath: cfg.Transcode.FFmpegPath,
			Format:     cfg.Transcode.Format,
			Bitrate:    cfg.Transcode.Bitrate,
			Timeout:    cfg.Transcode.Timeout.Duration,
		})
	}

	store := upload.NewStore(cfg.Upload.Dir, cfg.Upload.MaxBytes)
	p := pipeline.New(pipeline.Config{
		Recipient:       cfg.Delivery.Recipient,
		DeliveryTimeout: cfg.Delivery.Timeout.Duration,
		NotifyTimeout:   cfg.Notify.Timeout.Duration,
	}, store, transcoder, backend, notifier, logger)

	srv := server.New(server.Config{
		Port:           cfg.Server.Port,
		UploadField:    cfg.Upload.Field,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		CORSOrigins:    cfg.Server.CORSOrigins,
	}, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", map[string]any{
		"timeout": cfg.Server.ShutdownTimeout.Duration.String(),
	})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func envelope(cfg *config.Config) delivery.Envelope {
	return delivery.Envelope{
		Recipient:  cfg.Delivery.Recipient,
		SenderName: cfg.Delivery.SenderName,
		SenderAddr: cfg.Delivery.SenderAddr,
		Subject:    cfg.Delivery.Subject,
	}
}

func buildSMTP(cfg *config.Config) (*delivery.SMTPBackend, error) {
	return delivery.NewSMTP(delivery.SMTPConfig{
		Host:     cfg.Delivery.SMTP.Host,
		Port:     cfg.Delivery.SMTP.Port,
		Username: cfg.Delivery.SMTP.Username,
		Password: cfg.Delivery.SMTP.Password,
		Timeout:  cfg.Delivery.Timeout.Duration,
		Envelope: envelope(cfg),
	})
}

func buildAPI(cfg *config.Config) (*delivery.APIBackend, error) {
	return delivery.NewAPI(delivery.APIConfig{
		URL:      cfg.Delivery.API.URL,
		Key:      cfg.Delivery.API.Key,
		Timeout:  cfg.Delivery.Timeout.Duration,
		Envelope: envelope(cfg),
	})
}

func buildBackend(cfg *config.Config) (delivery.Backend, error) {
	switch cfg.Delivery.Backend {
	case config.BackendSMTP:
		return buildSMTP(cfg)

	case config.BackendAPI:
		return buildAPI(cfg)

	case config.BackendMediaStore:
		var links delivery.LinkMailer
		var err error
		switch cfg.Delivery.LinkMailer {
		case config.BackendSMTP:
			links, err = buildSMTP(cfg)
		default:
			links, err = buildAPI(cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("link mailer: %w", err)
		}
		return delivery.NewMediaStore(delivery.MediaStoreConfig{
			Bucket:        cfg.Delivery.MediaStore.Bucket,
			Prefix:        cfg.Delivery.MediaStore.Prefix,
			Region:        cfg.Delivery.MediaStore.Region,
			Endpoint:      cfg.Delivery.MediaStore.Endpoint,
			UsePathStyle:  cfg.Delivery.MediaStore.PathStyle,
			PublicBaseURL: cfg.Delivery.MediaStore.PublicBaseURL,
		}, links)

	default:
		return nil, fmt.Errorf("unknown delivery backend %q", cfg.Delivery.Backend)
	}
}

func buildNotifier(cfg *config.Config) (notify.Notifier, error) {
	retries := webhook.DefaultRetries
	if cfg.Notify.Retries != nil {
		retries = *cfg.Notify.Retries
	}

	switch cfg.Notify.Type {
	case config.NotifierWebhook:
		return webhook.New(webhook.Config{
			URL:     cfg.Notify.URL,
			Headers: cfg.Notify.Headers,
			Timeout: cfg.Notify.Timeout.Duration,
			Retries: retries,
		})
	case config.NotifierRedis:
		return redis.New(redis.Config{
			URL:     cfg.Notify.URL,
			Channel: cfg.Notify.Channel,
			Timeout: cfg.Notify.Timeout.Duration,
			Retries: retries,
		})
	case config.NotifierNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown notify type %q", cfg.Notify.Type)
	}
}
