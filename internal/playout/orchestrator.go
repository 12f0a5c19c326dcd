package playout

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"tv-playout/internal/platform/metrics"
)

// Orchestrator is the playout state machine. It is the single control
// authority: commands mutate the desired state under one lock and return
// immediately; the Run loop reconciles the desired state against the actual
// engine process on every poll interval. Blocking work (spawn, bounded
// termination wait) therefore happens only on the loop goroutine, never on
// the request path — callers observe progress through Status.
type Orchestrator struct {
	settings   Settings
	queue      *Queue
	overlays   *OverlayManager
	continuity *Continuity
	trash      *TrashBin
	log        *slog.Logger
	metrics    *metrics.Metrics

	mu            sync.Mutex
	state         State
	wantBroadcast bool
	wantLive      bool
	current       *PlayoutSession
	lastError     string
	videosPlayed  int
	crashes       int
	runStart      time.Time
}

// NewOrchestrator wires the state machine. Metrics may be nil (tests).
func NewOrchestrator(settings Settings, q *Queue, overlays *OverlayManager, continuity *Continuity, trash *TrashBin, log *slog.Logger, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		settings:   settings,
		queue:      q,
		overlays:   overlays,
		continuity: continuity,
		trash:      trash,
		log:        log,
		metrics:    m,
		state:      StateStopped,
	}
}

// Run drives the reconcile loop until ctx is canceled, then shuts the
// engine down and releases the output directory.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.settings.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.log.Info("orchestrator shutting down")
			o.continuity.Close()
			o.mu.Lock()
			o.current = nil
			o.state = StateStopped
			o.mu.Unlock()
			return
		case <-ticker.C:
			o.tick()
		}
	}
}

// StartBroadcast turns the broadcast on. The next tick selects the first
// source (front of queue, or the idle fallback) and starts a session.
// Engine availability is validated synchronously so a misconfigured binary
// is reported to the caller with no state change.
func (o *Orchestrator) StartBroadcast() error {
	if err := o.continuity.Check(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.wantBroadcast = true
	o.wantLive = false
	o.lastError = ""
	return nil
}

// StopBroadcast turns the broadcast off; the next tick terminates the
// session. The in-flight item is not re-queued (its file persists).
func (o *Orchestrator) StopBroadcast() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.wantBroadcast = false
	o.wantLive = false
}

// GoLive switches to the capture source, implicitly starting the broadcast
// if it was off. Going live while already live is rejected.
func (o *Orchestrator) GoLive() error {
	if err := o.continuity.Check(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.wantLive {
		return ErrAlreadyLive
	}
	o.wantLive = true
	o.wantBroadcast = true
	o.lastError = ""
	return nil
}

// EndLive leaves live mode; the next tick resumes queue/idle selection.
func (o *Orchestrator) EndLive() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.wantLive {
		return ErrNotLive
	}
	o.wantLive = false
	return nil
}

// Enqueue appends an uploaded item and returns the new queue length. If the
// broadcast is idling, the next tick preempts the idle loop with this item.
func (o *Orchestrator) Enqueue(item MediaItem) int {
	n := o.queue.Enqueue(item)
	if o.metrics != nil {
		o.metrics.IncItemsEnqueued()
	}
	o.log.Info("item enqueued",
		slog.String("id", item.ID),
		slog.String("name", item.Name),
		slog.Int("queue_length", n),
	)
	return n
}

// State returns the current state machine state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// QueueLength reports the number of pending items (metrics gauge refresh).
func (o *Orchestrator) QueueLength() int {
	return o.queue.Len()
}

// Broadcasting reports whether the broadcast is logically on.
func (o *Orchestrator) Broadcasting() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.wantBroadcast
}

// SessionView describes the active session for status reporting.
type SessionView struct {
	Source         SourceDescriptor `json:"source"`
	StartedAt      time.Time        `json:"started_at"`
	ElapsedSeconds float64          `json:"elapsed_seconds"`
}

// Stats are the broadcast run counters.
type Stats struct {
	VideosPlayed     int     `json:"videos_played"`
	CrashesRecovered int     `json:"crashes_recovered"`
	Discontinuities  int     `json:"discontinuities"`
	TrashedSegments  int     `json:"trashed_segments"`
	QueueLength      int     `json:"queue_length"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// StatusReport is the full orchestrator state for the status endpoint.
type StatusReport struct {
	State        State        `json:"state"`
	Broadcasting bool         `json:"broadcasting"`
	LiveMode     bool         `json:"live_mode"`
	Queue        []MediaItem  `json:"queue"`
	Current      *SessionView `json:"current,omitempty"`
	Stats        Stats        `json:"stats"`
	ProgramName  string       `json:"program_name,omitempty"`
	LastError    string       `json:"last_error,omitempty"`
}

// Status returns a consistent snapshot of the orchestrator state.
func (o *Orchestrator) Status() StatusReport {
	o.mu.Lock()
	defer o.mu.Unlock()

	report := StatusReport{
		State:        o.state,
		Broadcasting: o.wantBroadcast,
		LiveMode:     o.wantLive,
		Queue:        o.queue.Snapshot(),
		ProgramName:  o.overlays.ProgramName(),
		LastError:    o.lastError,
	}
	report.Stats = Stats{
		VideosPlayed:     o.videosPlayed,
		CrashesRecovered: o.crashes,
		Discontinuities:  o.continuity.Discontinuities(),
		TrashedSegments:  o.trash.Len(),
		QueueLength:      len(report.Queue),
	}
	if !o.runStart.IsZero() {
		report.Stats.UptimeSeconds = time.Since(o.runStart).Seconds()
	}
	if o.current != nil {
		report.Current = &SessionView{
			Source:         o.current.Source,
			StartedAt:      o.current.StartedAt,
			ElapsedSeconds: time.Since(o.current.StartedAt).Seconds(),
		}
	}
	return report
}

// tick reconciles desired state against the running engine. It is invoked by
// the Run loop once per poll interval; every transition that changes the
// active source goes through the continuity manager.
func (o *Orchestrator) tick() {
	o.mu.Lock()
	want, live := o.wantBroadcast, o.wantLive
	cur, state := o.current, o.state
	o.mu.Unlock()

	switch {
	case !want:
		if cur != nil {
			o.continuity.EndRun()
			o.mu.Lock()
			o.current = nil
			o.state = StateStopped
			o.runStart = time.Time{}
			o.mu.Unlock()
		} else if state != StateStopped {
			o.mu.Lock()
			o.state = StateStopped
			o.mu.Unlock()
		}

	case live:
		o.tickLive(cur)

	default:
		o.tickQueueIdle(cur, state)
	}

	if want {
		o.maintain()
	}
}

// tickLive keeps the capture session up while live mode is wanted.
func (o *Orchestrator) tickLive(cur *PlayoutSession) {
	if cur == nil || cur.Source.Kind != SourceCapture {
		src := CaptureSource(o.settings.CaptureFormat, o.settings.CaptureDevice)
		o.startSession(src, StateLive)
		return
	}

	if o.continuity.Alive(cur.handle) {
		return
	}

	if code := cur.handle.ExitCode(); code != 0 {
		// Fail-safe: a dead capture never leaves the feed dark and never
		// stops the broadcast.
		o.recordCrash(cur, code)
		o.mu.Lock()
		o.wantLive = false
		o.mu.Unlock()
		o.startIdle()
		return
	}

	// Capture exited cleanly (device closed); bring it back.
	o.startSession(CaptureSource(o.settings.CaptureFormat, o.settings.CaptureDevice), StateLive)
}

// tickQueueIdle runs the queue/idle selection while not in live mode.
func (o *Orchestrator) tickQueueIdle(cur *PlayoutSession, state State) {
	switch {
	case cur == nil:
		o.startNext()

	case cur.Source.Kind == SourceCapture:
		// Leaving live mode: resume queue/idle selection.
		o.startNext()

	case !o.continuity.Alive(cur.handle):
		if code := cur.handle.ExitCode(); code != 0 {
			o.recordCrash(cur, code)
			o.startIdle()
		} else {
			o.startNext()
		}

	case state == StateIdle && o.queue.Len() > 0:
		// Idle content carries no playback commitment; a fresh queue item
		// preempts it immediately.
		o.startNext()
	}
}

// startNext plays the front of the queue, or the idle fallback when empty.
func (o *Orchestrator) startNext() {
	if item, ok := o.queue.Dequeue(); ok {
		if o.startSession(FileSource(item.Name, item.Path), StateQueuePlaying) {
			o.mu.Lock()
			o.videosPlayed++
			o.mu.Unlock()
		}
		return
	}
	o.startIdle()
}

func (o *Orchestrator) startIdle() {
	o.startSession(o.idleSource(), StateIdle)
}

// idleSource loops the configured idle file, falling back to a generated
// test pattern when none is configured or the file is missing.
func (o *Orchestrator) idleSource() SourceDescriptor {
	if o.settings.IdleSource != "" {
		if _, err := os.Stat(o.settings.IdleSource); err == nil {
			return LoopSource("idle", o.settings.IdleSource)
		}
		o.log.Warn("idle source missing, using test pattern", slog.String("path", o.settings.IdleSource))
	}
	pattern := fmt.Sprintf("smptebars=size=%dx%d:rate=30", o.settings.StreamWidth, o.settings.StreamHeight)
	return PatternSource(pattern, defaultTone)
}

// startSession binds the staged overlay snapshot and asks the continuity
// manager for a new session. A launch failure clears the broadcast: the
// orchestrator returns to STOPPED and the error is visible in Status.
func (o *Orchestrator) startSession(src SourceDescriptor, state State) bool {
	overlay := o.overlays.Composition()

	h, err := o.continuity.StartSession(src, overlay)
	if err != nil {
		o.log.Error("session start failed",
			slog.String("source", string(src.Kind)),
			slog.String("label", src.Label),
			slog.String("error", err.Error()),
		)
		o.mu.Lock()
		o.wantBroadcast = false
		o.wantLive = false
		o.current = nil
		o.state = StateStopped
		o.runStart = time.Time{}
		o.lastError = err.Error()
		o.mu.Unlock()
		return false
	}

	if o.metrics != nil {
		o.metrics.IncSessionsStarted(string(src.Kind))
	}

	o.mu.Lock()
	o.current = &PlayoutSession{
		Source:    src,
		Overlay:   overlay,
		StartedAt: h.StartedAt,
		handle:    h,
	}
	o.state = state
	o.lastError = ""
	if o.runStart.IsZero() {
		o.runStart = time.Now()
	}
	o.mu.Unlock()
	return true
}

func (o *Orchestrator) recordCrash(cur *PlayoutSession, code int) {
	o.log.Warn("session crashed, falling back to idle",
		slog.String("source", string(cur.Source.Kind)),
		slog.String("label", cur.Source.Label),
		slog.Int("exit_code", code),
	)
	if o.metrics != nil {
		o.metrics.IncSessionCrashes()
	}
	o.mu.Lock()
	o.crashes++
	o.mu.Unlock()
}

// maintain enforces retention on the output directory and purges the trash.
func (o *Orchestrator) maintain() {
	if retired := o.continuity.Prune(); retired > 0 && o.metrics != nil {
		o.metrics.AddSegmentsDeleted(retired)
	}
	o.trash.Purge()
}
