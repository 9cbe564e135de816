package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

// DefaultSMTPTimeout is the default timeout for one SMTP session.
const DefaultSMTPTimeout = 30 * time.Second

// SMTPConfig configures the authenticated mail transport backend.
type SMTPConfig struct {
	// Host is the SMTP server hostname (required).
	Host string
	// Port is the SMTP port (default 587).
	Port int
	// Username and Password authenticate the session. Empty Username
	// skips authentication (open relays, test servers).
	Username string
	Password string
	// Timeout bounds the whole dial-and-send session (default 30s).
	Timeout time.Duration
	// Envelope is the fixed message identity.
	Envelope Envelope
}

// SMTPBackend streams the asset as a mail attachment through an
// authenticated SMTP session.
type SMTPBackend struct {
	config SMTPConfig
}

// NewSMTP creates an SMTP backend from the given config.
func NewSMTP(cfg SMTPConfig) (*SMTPBackend, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp backend requires a host")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSMTPTimeout
	}
	return &SMTPBackend{config: cfg}, nil
}

// Name implements Backend.
func (b *SMTPBackend) Name() string { return "smtp" }

// Deliver attaches the asset file and sends it in one SMTP session.
func (b *SMTPBackend) Deliver(ctx context.Context, msg *Message) error {
	m, err := b.compose("<p>You received a new voice message.</p>")
	if err != nil {
		return wrapErr(b.Name(), "compose", err)
	}
	m.AttachFile(msg.Path, mail.WithFileName(msg.Filename))

	return wrapErr(b.Name(), "send", b.send(ctx, m))
}

// SendLink implements LinkMailer for the media store backend.
func (b *SMTPBackend) SendLink(ctx context.Context, filename, url string) error {
	m, err := b.compose(fmt.Sprintf(
		`<p>You received a new voice message: <a href=%q>%s</a></p>`, url, filename))
	if err != nil {
		return wrapErr(b.Name(), "compose", err)
	}
	return wrapErr(b.Name(), "link", b.send(ctx, m))
}

// compose builds a message carrying the configured envelope and HTML body.
func (b *SMTPBackend) compose(html string) (*mail.Msg, error) {
	env := b.config.Envelope
	m := mail.NewMsg()
	if err := m.FromFormat(env.SenderName, env.SenderAddr); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", env.SenderAddr, err)
	}
	if err := m.To(env.Recipient); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", env.Recipient, err)
	}
	m.Subject(env.Subject)
	m.SetBodyString(mail.TypeTextHTML, html)
	return m, nil
}

func (b *SMTPBackend) send(ctx context.Context, m *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(b.config.Port),
		mail.WithTimeout(b.config.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if b.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(b.config.Username),
			mail.WithPassword(b.config.Password),
		)
	}

	client, err := mail.NewClient(b.config.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("dial and send: %w", err)
	}
	return nil
}

// Verify interfaces.
var (
	_ Backend    = (*SMTPBackend)(nil)
	_ LinkMailer = (*SMTPBackend)(nil)
)
