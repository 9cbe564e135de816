package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/voicepost/voicepost/iox"
)

// DefaultAPITimeout is the default per-request timeout for the email API.
const DefaultAPITimeout = 30 * time.Second

// maxDetailBytes bounds how much of an upstream error body is retained.
const maxDetailBytes = 2048

// APIConfig configures the transactional email API backend.
// The request shape is Brevo-compatible (v3/smtp/email).
type APIConfig struct {
	// URL is the email endpoint (required).
	URL string
	// Key is the api-key header value (required).
	Key string
	// Timeout is the per-request timeout (default 30s).
	Timeout time.Duration
	// Envelope is the fixed message identity.
	Envelope Envelope
}

// APIBackend delivers messages as inline base64 attachments over an
// authenticated HTTPS call to a transactional email API.
type APIBackend struct {
	config APIConfig
	client *http.Client
}

// NewAPI creates an API backend from the given config.
func NewAPI(cfg APIConfig) (*APIBackend, error) {
	if cfg.URL == "" {
		return nil, errors.New("api backend requires a URL")
	}
	if cfg.Key == "" {
		return nil, errors.New("api backend requires an API key")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultAPITimeout
	}

	return &APIBackend{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name implements Backend.
func (b *APIBackend) Name() string { return "api" }

// apiEmail is the JSON request body sent to the email endpoint.
type apiEmail struct {
	Sender      apiAddress      `json:"sender"`
	To          []apiAddress    `json:"to"`
	Subject     string          `json:"subject"`
	HTMLContent string          `json:"htmlContent"`
	Attachment  []apiAttachment `json:"attachment,omitempty"`
}

type apiAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type apiAttachment struct {
	Name    string `json:"name"`
	Content string `json:"content"` // base64
}

// Deliver reads the asset from disk, base64-encodes it, and posts it as an
// inline attachment. A single round trip; non-2xx fails without retry.
func (b *APIBackend) Deliver(ctx context.Context, msg *Message) error {
	data, err := os.ReadFile(msg.Path)
	if err != nil {
		return wrapErr(b.Name(), "read", err)
	}

	body := b.newEmail("<p>You received a new voice message.</p>")
	body.Attachment = []apiAttachment{{
		Name:    msg.Filename,
		Content: base64.StdEncoding.EncodeToString(data),
	}}

	return wrapErr(b.Name(), "send", b.post(ctx, body))
}

// SendLink implements LinkMailer: a short HTML email carrying the asset URL
// instead of the bytes.
func (b *APIBackend) SendLink(ctx context.Context, filename, url string) error {
	body := b.newEmail(fmt.Sprintf(
		`<p>You received a new voice message: <a href=%q>%s</a></p>`, url, filename))
	return wrapErr(b.Name(), "link", b.post(ctx, body))
}

func (b *APIBackend) newEmail(html string) *apiEmail {
	env := b.config.Envelope
	return &apiEmail{
		Sender:      apiAddress{Name: env.SenderName, Email: env.SenderAddr},
		To:          []apiAddress{{Email: env.Recipient}},
		Subject:     env.Subject,
		HTMLContent: html,
	}
}

func (b *APIBackend) post(ctx context.Context, email *apiEmail) error {
	payload, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", b.config.Key)

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxDetailBytes))
		return &StatusError{Code: resp.StatusCode, Detail: string(detail)}
	}

	// Drain body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Close releases backend resources.
func (b *APIBackend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

// Verify interfaces.
var (
	_ Backend    = (*APIBackend)(nil)
	_ LinkMailer = (*APIBackend)(nil)
)
