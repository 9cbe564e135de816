// Package delivery sends an uploaded voice message to its recipient.
//
// Three backends implement the same interface: an authenticated SMTP
// transport that attaches the file, a transactional email API that embeds
// the file as a base64 attachment, and an object store upload followed by
// a link email. Each delivery is a single round trip; nothing here retries.
package delivery

import "context"

// Message is one deliverable asset plus its presentation metadata.
type Message struct {
	// Path is the on-disk file to deliver.
	Path string
	// Filename is the name shown to the recipient.
	Filename string
	// ContentType is the MIME type of the asset, e.g. audio/mpeg.
	ContentType string
}

// Envelope is the fixed sender/recipient identity applied to every
// outbound message. Constructed once at startup from configuration.
type Envelope struct {
	Recipient  string
	SenderName string
	SenderAddr string
	Subject    string
}

// Backend delivers a message in a single round trip.
// Implementations never retry and must respect context cancellation.
type Backend interface {
	Deliver(ctx context.Context, msg *Message) error
	// Name identifies the backend in logs and notification events.
	Name() string
}

// LinkMailer sends a short HTML email pointing at an uploaded asset.
// Used by the media store backend after the upload round trip.
type LinkMailer interface {
	SendLink(ctx context.Context, filename, url string) error
}
