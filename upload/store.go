// Package upload persists incoming audio uploads to a process-local
// temp directory under collision-resistant names.
package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voicepost/voicepost/iox"
)

// ErrTooLarge is returned by Save when the upload exceeds the configured cap.
var ErrTooLarge = errors.New("upload exceeds size limit")

var whitespacePattern = regexp.MustCompile(`\s+`)

// Asset is one uploaded file persisted to the temp directory.
// An asset is owned by a single request and removed when that request ends.
type Asset struct {
	// Path is the absolute or store-relative location on disk.
	Path string
	// OriginalName is the client-supplied filename, unmodified.
	OriginalName string
	SizeBytes    int64
	CreatedAt    time.Time
}

// Store writes uploads into a temp directory created lazily on first use.
// Concurrent saves never collide: each stored name carries a nanosecond
// timestamp plus a per-process sequence number.
type Store struct {
	dir      string
	maxBytes int64

	mkdir    sync.Once
	mkdirErr error
	seq      atomic.Int64
}

// NewStore creates a store rooted at dir. maxBytes caps accepted upload
// size; zero disables the cap.
func NewStore(dir string, maxBytes int64) *Store {
	return &Store{dir: dir, maxBytes: maxBytes}
}

// Dir returns the temp directory path.
func (s *Store) Dir() string { return s.dir }

// Save streams r into a new file named after the sanitized original name.
// The stored filename has the form <unix-nanos>-<seq>-<normalized-name>;
// whitespace in the original name is replaced with underscores and any
// path components are stripped.
func (s *Store) Save(originalName string, r io.Reader) (*Asset, error) {
	s.mkdir.Do(func() {
		s.mkdirErr = os.MkdirAll(s.dir, 0o755)
	})
	if s.mkdirErr != nil {
		return nil, fmt.Errorf("create upload dir %q: %w", s.dir, s.mkdirErr)
	}

	now := time.Now()
	name := fmt.Sprintf("%d-%d-%s", now.UnixNano(), s.seq.Add(1), SanitizeName(originalName))
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}

	src := r
	if s.maxBytes > 0 {
		// Read one extra byte so an exactly-at-limit upload still succeeds.
		src = io.LimitReader(r, s.maxBytes+1)
	}

	written, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.maxBytes > 0 && written > s.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		// Never leave a partial or oversized file behind.
		_ = iox.RemoveIfExists(path)
		if errors.Is(err, ErrTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("write upload file: %w", err)
	}

	return &Asset{
		Path:         path,
		OriginalName: originalName,
		SizeBytes:    written,
		CreatedAt:    now,
	}, nil
}

// SanitizeName normalizes a client-supplied filename for on-disk use:
// path components are stripped and whitespace runs become underscores.
func SanitizeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = whitespacePattern.ReplaceAllString(base, "_")
	if base == "" || base == "." || base == ".." || base == "/" {
		return "upload"
	}
	return base
}
