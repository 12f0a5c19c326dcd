package playout

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gofrs/flock"
)

const lockFileName = ".playout.lock"

// Continuity owns the shared output directory and makes repeated engine
// restarts look like one continuous stream to downstream players. It never
// resets the segment sequence within a broadcast run, instructs each new
// process to append to the manifest with a discontinuity marker, enforces
// the single-writer discipline, and bounds disk use through retention.
type Continuity struct {
	settings Settings
	sup      *Supervisor
	trash    *TrashBin
	log      *slog.Logger
	lock     *flock.Flock

	mu              sync.Mutex
	active          *SessionHandle
	runOpen         bool
	discontinuities int
}

// NewContinuity claims the output directory and clears segments left over
// from a previous controller run (orchestrator state is not persisted).
// It returns ErrWriterActive if another controller already owns the
// directory.
func NewContinuity(settings Settings, sup *Supervisor, trash *TrashBin, log *slog.Logger) (*Continuity, error) {
	if err := os.MkdirAll(settings.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	lock := flock.New(filepath.Join(settings.OutputDir, lockFileName))
	held, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock output directory: %w", err)
	}
	if !held {
		return nil, fmt.Errorf("%w: %s", ErrWriterActive, settings.OutputDir)
	}

	c := &Continuity{
		settings: settings,
		sup:      sup,
		trash:    trash,
		log:      log,
		lock:     lock,
	}

	if err := c.cleanStart(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return c, nil
}

// cleanStart removes the stale manifest and segment files from a previous
// run so the first session of this controller starts from sequence zero.
func (c *Continuity) cleanStart() error {
	entries, err := os.ReadDir(c.settings.OutputDir)
	if err != nil {
		return err
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if _, ok := parseSegmentNumber(name); !ok && name != manifestName {
			continue
		}
		if err := os.Remove(filepath.Join(c.settings.OutputDir, name)); err != nil {
			c.log.Warn("startup cleanup", slog.String("file", name), slog.String("error", err.Error()))
			continue
		}
		removed++
	}
	if removed > 0 {
		c.log.Info("cleared stale output files", slog.Int("count", removed))
	}
	return nil
}

// Check verifies the engine is launchable without starting a session.
func (c *Continuity) Check() error {
	return c.sup.Check()
}

// Alive reports whether the session's process is still running.
func (c *Continuity) Alive(h *SessionHandle) bool {
	return c.sup.IsAlive(h)
}

// StartSession switches the output to a new source. The previous process, if
// any, is terminated and its death confirmed before the next one launches;
// the new process appends to the manifest starting at the next unused
// sequence number, with the boundary marked as a discontinuity.
func (c *Continuity) StartSession(src SourceDescriptor, overlay OverlayConfig) (*SessionHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		c.sup.Stop(c.active)
		c.active = nil
	}

	start, err := c.nextSequence()
	if err != nil {
		return nil, err
	}

	discont := c.runOpen
	out := c.settings.OutputConfig(start, discont)

	h, err := c.sup.StartSession(src, overlay, out)
	if err != nil {
		return nil, err
	}

	c.active = h
	c.runOpen = true
	if discont {
		c.discontinuities++
	}
	return h, nil
}

// StopSession terminates the active process and confirms its death. The
// manifest and sequence position stay in place so a later session in the
// same run continues the numbering.
func (c *Continuity) StopSession() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		c.sup.Stop(c.active)
		c.active = nil
	}
}

// EndRun closes the broadcast run: the session stops and the next run's
// first session is no longer a discontinuity continuation.
func (c *Continuity) EndRun() {
	c.StopSession()

	c.mu.Lock()
	c.runOpen = false
	c.mu.Unlock()
}

// Prune enforces the retention window: once the segment count exceeds the
// configured maximum, the oldest segments move to the trash bin. Returns how
// many segments were retired.
func (c *Continuity) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	segments, err := c.listSegments()
	if err != nil {
		c.log.Warn("list segments", slog.String("error", err.Error()))
		return 0
	}

	excess := len(segments) - c.settings.MaxActiveSegments
	if excess <= 0 {
		return 0
	}

	moved := 0
	for _, name := range segments[:excess] {
		if err := c.trash.Discard(filepath.Join(c.settings.OutputDir, name)); err != nil {
			c.log.Warn("retire segment", slog.String("segment", name), slog.String("error", err.Error()))
			continue
		}
		moved++
	}
	if moved > 0 {
		c.log.Debug("retired segments", slog.Int("count", moved))
	}
	return moved
}

// Discontinuities reports how many source switches this run has marked.
func (c *Continuity) Discontinuities() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.discontinuities
}

// Close stops any active session and releases the output directory lock.
func (c *Continuity) Close() {
	c.StopSession()
	_ = c.lock.Unlock()
}

// nextSequence scans the output directory for the highest segment number and
// returns the next one. Segment files on disk are the ground truth; the
// counter therefore survives any number of process restarts.
func (c *Continuity) nextSequence() (int64, error) {
	segments, err := c.listSegments()
	if err != nil {
		return 0, fmt.Errorf("scan output directory: %w", err)
	}
	if len(segments) == 0 {
		return 0, nil
	}
	last, _ := parseSegmentNumber(segments[len(segments)-1])
	return last + 1, nil
}

// listSegments returns segment file names sorted by sequence number.
func (c *Continuity) listSegments() ([]string, error) {
	entries, err := os.ReadDir(c.settings.OutputDir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := parseSegmentNumber(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		a, _ := parseSegmentNumber(names[i])
		b, _ := parseSegmentNumber(names[j])
		return a < b
	})
	return names, nil
}

// parseSegmentNumber extracts the sequence number from a segment file name
// of the form segment00042.ts.
func parseSegmentNumber(name string) (int64, bool) {
	if !strings.HasPrefix(name, "segment") || !strings.HasSuffix(name, ".ts") {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, "segment"), ".ts")
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
