// Package transcode converts uploaded audio to a target format by driving
// an external ffmpeg process.
//
// Completion is signaled by process exit, never by polling the output file:
// the result path is handed downstream only after ffmpeg has exited zero,
// so a half-written output is never read.
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/voicepost/voicepost/iox"
)

// Executor runs an external conversion command to completion.
// The seam exists so tests can substitute a fake process.
type Executor interface {
	Run(ctx context.Context, name string, args ...string) error
}

// Config configures the transcoder.
type Config struct {
	// FFmpegPath is the ffmpeg binary to invoke (default "ffmpeg").
	FFmpegPath string
	// Format is the target container/codec (default "mp3").
	Format string
	// Bitrate is the target audio bitrate (default "128k").
	Bitrate string
	// Timeout bounds a single conversion (default 2m).
	Timeout time.Duration
}

// Result is a completed conversion.
type Result struct {
	// Path is the output file, fully written.
	Path   string
	Format string
}

// Transcoder converts a source audio file into the configured target format.
type Transcoder struct {
	config Config
	exec   Executor
}

// New creates a transcoder with defaults applied.
func New(cfg Config) *Transcoder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.Format == "" {
		cfg.Format = "mp3"
	}
	if cfg.Bitrate == "" {
		cfg.Bitrate = "128k"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Transcoder{config: cfg, exec: execRunner{}}
}

// Transcode converts srcPath and returns the output location.
// On any failure the partial output file is removed before returning,
// so callers never see a corrupt result.
func (t *Transcoder) Transcode(ctx context.Context, srcPath string) (*Result, error) {
	out := OutputPath(srcPath, t.config.Format)

	ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	args := []string{"-y", "-i", srcPath, "-vn"}
	if codec := codecFor(t.config.Format); codec != "" {
		args = append(args, "-codec:a", codec)
	}
	args = append(args, "-b:a", t.config.Bitrate, out)

	if err := t.exec.Run(ctx, t.config.FFmpegPath, args...); err != nil {
		_ = iox.RemoveIfExists(out)
		return nil, fmt.Errorf("transcode %q to %s: %w", filepath.Base(srcPath), t.config.Format, err)
	}

	// ffmpeg exited zero; the output must exist before it is referenced.
	if _, err := os.Stat(out); err != nil {
		return nil, fmt.Errorf("transcode produced no output: %w", err)
	}

	return &Result{Path: out, Format: t.config.Format}, nil
}

// OutputPath derives the conversion target path from the source path by
// replacing its extension. A source already carrying the target extension
// gets an extra segment so input and output never alias.
func OutputPath(srcPath, format string) string {
	trimmed := strings.TrimSuffix(srcPath, filepath.Ext(srcPath))
	out := trimmed + "." + format
	if out == srcPath {
		out = trimmed + ".out." + format
	}
	return out
}

// codecFor maps a target format to the ffmpeg encoder flag value.
// Unknown formats return empty and let ffmpeg pick from the extension.
func codecFor(format string) string {
	switch format {
	case "mp3":
		return "libmp3lame"
	case "ogg":
		return "libvorbis"
	case "m4a", "aac":
		return "aac"
	default:
		return ""
	}
}

// execRunner invokes the real ffmpeg binary.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s: %w: %s", name, err, tail(stderr.Bytes(), 512))
	}
	return nil
}

// tail returns the last n bytes of b; ffmpeg reports its error on the
// final stderr lines.
func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return strings.TrimSpace(string(b))
}
