package pipeline

import (
	"sync"

	"github.com/voicepost/voicepost/iox"
	"github.com/voicepost/voicepost/log"
)

// Janitor tracks the temporary files created during one request and
// removes each exactly once. A request creates 0, 1, or 2 assets
// depending on whether the upload was persisted and whether transcoding
// ran; all of them go through the same sweep on every exit path.
//
// Removal failures are logged and never surfaced: by the time the
// janitor runs, the terminal outcome is already decided.
type Janitor struct {
	logger *log.Logger

	mu    sync.Mutex
	paths []string
	swept map[string]bool
}

// NewJanitor creates a janitor logging through the given request logger.
func NewJanitor(logger *log.Logger) *Janitor {
	return &Janitor{logger: logger, swept: make(map[string]bool)}
}

// Track registers a path for removal. Call as soon as the file exists,
// before any step that could fail.
func (j *Janitor) Track(path string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.paths = append(j.paths, path)
}

// Sweep removes every tracked file that has not been removed yet.
// Safe to call more than once; already-swept paths are skipped, so a
// double sweep never double-removes or errors.
func (j *Janitor) Sweep() {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, path := range j.paths {
		if j.swept[path] {
			continue
		}
		j.swept[path] = true

		if err := iox.RemoveIfExists(path); err != nil {
			j.logger.Warn("temp file cleanup failed", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		j.logger.Debug("temp file removed", map[string]any{"path": path})
	}
}
