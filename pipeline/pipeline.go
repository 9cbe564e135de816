// Package pipeline orchestrates one upload request from received bytes to
// its single terminal outcome.
//
// States: Received -> Validated -> (Transcoded)? -> Delivered -> Completed,
// with failure reachable from any step. Every path runs exactly one cleanup
// sweep over the temp assets the request created, and the first error
// short-circuits the remaining steps but never the sweep.
package pipeline

import (
	"context"
	"errors"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voicepost/voicepost/delivery"
	"github.com/voicepost/voicepost/log"
	"github.com/voicepost/voicepost/notify"
	"github.com/voicepost/voicepost/transcode"
	"github.com/voicepost/voicepost/upload"
)

// Receiver persists one uploaded stream as a temp asset.
// Implemented by *upload.Store.
type Receiver interface {
	Save(originalName string, r io.Reader) (*upload.Asset, error)
}

// Transcoder converts a stored asset to the target format.
// Implemented by *transcode.Transcoder.
type Transcoder interface {
	Transcode(ctx context.Context, srcPath string) (*transcode.Result, error)
}

// Config carries the per-process pipeline settings.
type Config struct {
	// Recipient is reported in notification events.
	Recipient string
	// DeliveryTimeout bounds the delivery round trip. Zero disables.
	DeliveryTimeout time.Duration
	// NotifyTimeout bounds the out-of-band notification publish.
	NotifyTimeout time.Duration
}

// Pipeline wires the upload receiver, the optional transcoder, the
// delivery backend, and the optional notifier for one process.
// Safe for concurrent use; per-request state lives in Run.
type Pipeline struct {
	config     Config
	store      Receiver
	transcoder Transcoder // nil disables the transcoding step
	backend    delivery.Backend
	notifier   notify.Notifier // nil disables notifications
	logger     *log.Logger

	// notifyAsync is cleared in tests to make publishes synchronous.
	notifyAsync bool
}

// New creates a pipeline. transcoder and notifier may be nil.
func New(cfg Config, store Receiver, transcoder Transcoder, backend delivery.Backend, notifier notify.Notifier, logger *log.Logger) *Pipeline {
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 30 * time.Second
	}
	return &Pipeline{
		config:      cfg,
		store:       store,
		transcoder:  transcoder,
		backend:     backend,
		notifier:    notifier,
		logger:      logger,
		notifyAsync: true,
	}
}

// Run executes the pipeline for one upload and returns its terminal
// outcome. Exactly one outcome per call; every temp file created during
// the call is swept before Run returns, whatever the exit path.
func (p *Pipeline) Run(ctx context.Context, logger *log.Logger, originalName string, r io.Reader) *Outcome {
	start := time.Now()

	jan := NewJanitor(logger)
	defer jan.Sweep()

	asset, err := p.store.Save(originalName, r)
	if err != nil {
		if errors.Is(err, upload.ErrTooLarge) {
			logger.Warn("upload rejected", map[string]any{"error": err.Error()})
			return failure(StatusValidationFailed, "File too large")
		}
		logger.Error("upload write failed", map[string]any{"error": err.Error()})
		return failure(StatusStorageFailed, "Upload failed")
	}
	jan.Track(asset.Path)
	logger.Info("upload received", map[string]any{
		"path":       asset.Path,
		"name":       asset.OriginalName,
		"size_bytes": asset.SizeBytes,
	})

	deliverPath := asset.Path
	filename := upload.SanitizeName(asset.OriginalName)

	if p.transcoder != nil {
		res, terr := p.transcoder.Transcode(ctx, asset.Path)
		if terr != nil {
			logger.Error("transcode failed", map[string]any{"error": terr.Error()})
			return failure(StatusConversionFailed, "Audio conversion failed")
		}
		jan.Track(res.Path)
		deliverPath = res.Path
		filename = replaceExt(filename, res.Format)
		logger.Info("transcode complete", map[string]any{"path": res.Path, "format": res.Format})
	}

	msg := &delivery.Message{
		Path:        deliverPath,
		Filename:    filename,
		ContentType: contentTypeFor(deliverPath),
	}

	dctx := ctx
	if p.config.DeliveryTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, p.config.DeliveryTimeout)
		defer cancel()
	}
	if err := p.backend.Deliver(dctx, msg); err != nil {
		logger.Error("delivery failed", deliveryFields(err))
		return failure(StatusDeliveryFailed, "Message delivery failed")
	}
	logger.Info("message delivered", map[string]any{
		"backend":     p.backend.Name(),
		"filename":    filename,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	p.publishDelivered(logger, asset, filename, time.Since(start))

	return success("Sent successfully")
}

// publishDelivered notifies downstream systems after a successful delivery.
// Best-effort and out-of-band: failures are logged, never change the outcome.
func (p *Pipeline) publishDelivered(logger *log.Logger, asset *upload.Asset, filename string, elapsed time.Duration) {
	if p.notifier == nil {
		return
	}

	event := &notify.MessageDeliveredEvent{
		EventType:  "message_delivered",
		MessageID:  uuid.NewString(),
		Filename:   filename,
		SizeBytes:  asset.SizeBytes,
		Recipient:  p.config.Recipient,
		Backend:    p.backend.Name(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		DurationMs: elapsed.Milliseconds(),
	}

	publish := func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.config.NotifyTimeout)
		defer cancel()
		if err := p.notifier.Publish(ctx, event); err != nil {
			logger.Warn("delivery notification failed", map[string]any{"error": err.Error()})
		}
	}

	if p.notifyAsync {
		go publish()
		return
	}
	publish()
}

// deliveryFields builds structured log fields for a delivery failure,
// including classification and any upstream response detail. The detail
// never reaches the HTTP response.
func deliveryFields(err error) map[string]any {
	fields := map[string]any{"error": err.Error()}

	var de *delivery.Error
	if errors.As(err, &de) {
		fields["backend"] = de.Backend
		fields["op"] = de.Op
		if de.Kind != nil {
			fields["kind"] = de.Kind.Error()
		}
	}
	var statusErr *delivery.StatusError
	if errors.As(err, &statusErr) {
		fields["status"] = statusErr.Code
		if statusErr.Detail != "" {
			fields["upstream_detail"] = statusErr.Detail
		}
	}
	return fields
}

// replaceExt swaps the extension on a recipient-facing filename,
// e.g. "demo_file.webm" -> "demo_file.mp3".
func replaceExt(name, format string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + "." + format
}

// contentTypeFor resolves the MIME type from the asset extension.
// Common audio types are mapped explicitly; the stdlib table does not
// cover them on all platforms.
func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".ogg":
		return "audio/ogg"
	case ".webm":
		return "audio/webm"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".flac":
		return "audio/flac"
	}
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
