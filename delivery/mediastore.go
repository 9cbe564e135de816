package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/voicepost/voicepost/iox"
)

// s3API is the subset of the S3 client used by the media store backend.
// Tests substitute a recording fake.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// MediaStoreConfig configures the upload-then-link backend.
type MediaStoreConfig struct {
	// Bucket is the bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not
	// subdomain). Required by most S3-compatible providers.
	UsePathStyle bool
	// PublicBaseURL overrides the base used to build the emailed link,
	// e.g. a CDN domain fronting the bucket.
	PublicBaseURL string
}

// Validate checks that required media store configuration is present.
func (c *MediaStoreConfig) Validate() error {
	if c.Bucket == "" {
		return errors.New("media store bucket is required")
	}
	return nil
}

// MediaStoreBackend uploads the asset to an object store and emails a
// durable retrieval URL instead of the raw bytes.
type MediaStoreBackend struct {
	config MediaStoreConfig
	client s3API
	links  LinkMailer
}

// NewMediaStore creates a media store backend.
// Uses the AWS SDK default credential chain (env vars, shared config, IAM role).
func NewMediaStore(cfg MediaStoreConfig, links LinkMailer) (*MediaStoreBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if links == nil {
		return nil, errors.New("media store backend requires a link mailer")
	}

	ctx := context.Background()
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &MediaStoreBackend{
		config: cfg,
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		links:  links,
	}, nil
}

// Name implements Backend.
func (b *MediaStoreBackend) Name() string { return "mediastore" }

// Deliver uploads the asset bytes and sends the retrieval URL by email.
// The stored key reuses the temp file's collision-resistant name, so
// concurrent uploads of identically named recordings never overwrite.
func (b *MediaStoreBackend) Deliver(ctx context.Context, msg *Message) error {
	f, err := os.Open(msg.Path)
	if err != nil {
		return wrapErr(b.Name(), "read", err)
	}
	defer iox.DiscardClose(f)

	info, err := f.Stat()
	if err != nil {
		return wrapErr(b.Name(), "read", err)
	}

	key := path.Join(b.config.Prefix, filepath.Base(msg.Path))
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.config.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentType:   aws.String(msg.ContentType),
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return wrapErr(b.Name(), "upload", err)
	}

	return b.links.SendLink(ctx, msg.Filename, b.objectURL(key))
}

// objectURL builds the durable retrieval URL for an uploaded key.
// Precedence: explicit public base, then custom endpoint (path style),
// then the standard AWS virtual-hosted form.
func (b *MediaStoreBackend) objectURL(key string) string {
	escaped := escapeKey(key)
	if b.config.PublicBaseURL != "" {
		return strings.TrimSuffix(b.config.PublicBaseURL, "/") + "/" + escaped
	}
	if b.config.Endpoint != "" {
		return strings.TrimSuffix(b.config.Endpoint, "/") + "/" + b.config.Bucket + "/" + escaped
	}
	region := b.config.Region
	if region == "" {
		region = "us-east-1"
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.config.Bucket, region, escaped)
}

// escapeKey percent-encodes each path segment, preserving separators.
func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// Verify interface.
var _ Backend = (*MediaStoreBackend)(nil)
