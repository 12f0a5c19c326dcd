package playout

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// TrashBin holds retired segment files until their retention time elapses,
// then deletes them permanently. Segments move active -> trash -> deleted.
type TrashBin struct {
	dir       string
	retention time.Duration
	log       *slog.Logger

	mu      sync.Mutex
	stamped map[string]time.Time
}

// NewTrashBin creates the trash directory and adopts any files already in it.
func NewTrashBin(dir string, retention time.Duration, log *slog.Logger) (*TrashBin, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	t := &TrashBin{
		dir:       dir,
		retention: retention,
		log:       log,
		stamped:   make(map[string]time.Time),
	}

	// Files left over from a previous run are stamped now so they age out
	// one retention period from startup.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".ts") {
			t.stamped[e.Name()] = now
		}
	}

	return t, nil
}

// Discard moves a segment file into the trash and stamps it.
func (t *TrashBin) Discard(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	name := filepath.Base(path)
	if err := os.Rename(path, filepath.Join(t.dir, name)); err != nil {
		return err
	}
	t.stamped[name] = time.Now()
	return nil
}

// Purge permanently deletes trashed segments older than the retention period
// and returns how many were removed.
func (t *TrashBin) Purge() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-t.retention)
	removed := 0
	for name, stamp := range t.stamped {
		if stamp.After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(t.dir, name)); err != nil && !os.IsNotExist(err) {
			t.log.Warn("purge segment", slog.String("segment", name), slog.String("error", err.Error()))
			continue
		}
		delete(t.stamped, name)
		removed++
	}

	if removed > 0 {
		t.log.Info("purged trashed segments", slog.Int("count", removed))
	}
	return removed
}

// Len reports how many segments are waiting in the trash.
func (t *TrashBin) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.stamped)
}
