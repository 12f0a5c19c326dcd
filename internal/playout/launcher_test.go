package playout

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// fakeProcess is a controllable stand-in for an engine process.
type fakeProcess struct {
	pid      int
	stubborn bool // ignore SIGTERM; only Kill ends it

	mu     sync.Mutex
	done   chan struct{}
	code   int
	exited bool
}

func (p *fakeProcess) exit(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return
	}
	p.exited = true
	p.code = code
	close(p.done)
}

func (p *fakeProcess) hasExited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

func (p *fakeProcess) Signal(sig os.Signal) error {
	if p.stubborn {
		return nil
	}
	p.exit(0)
	return nil
}

func (p *fakeProcess) Kill() error {
	p.exit(-1)
	return nil
}

func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.exited {
		return -1
	}
	return p.code
}

func (p *fakeProcess) Pid() int { return p.pid }

// fakeLauncher records launches and detects any overlap of live processes.
type fakeLauncher struct {
	failCheck  error
	failLaunch error
	stubborn   bool
	onLaunch   func(args []string)

	mu       sync.Mutex
	launches [][]string
	procs    []*fakeProcess
	overlaps int
}

func (l *fakeLauncher) Check() error { return l.failCheck }

func (l *fakeLauncher) Launch(args []string) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failLaunch != nil {
		return nil, l.failLaunch
	}
	for _, p := range l.procs {
		if !p.hasExited() {
			l.overlaps++
		}
	}
	if l.onLaunch != nil {
		l.onLaunch(args)
	}

	p := &fakeProcess{
		pid:      1000 + len(l.procs),
		stubborn: l.stubborn,
		done:     make(chan struct{}),
	}
	l.launches = append(l.launches, args)
	l.procs = append(l.procs, p)
	return p, nil
}

func (l *fakeLauncher) current() *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.procs) == 0 {
		return nil
	}
	return l.procs[len(l.procs)-1]
}

func (l *fakeLauncher) lastArgs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.launches) == 0 {
		return nil
	}
	return l.launches[len(l.launches)-1]
}

func (l *fakeLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launches)
}

func (l *fakeLauncher) overlapCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.overlaps
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSettings(t *testing.T) Settings {
	t.Helper()
	dir := t.TempDir()
	return Settings{
		EnginePath:        "fake-engine",
		OutputDir:         filepath.Join(dir, "hls"),
		UploadDir:         filepath.Join(dir, "videos"),
		OverlayDir:        filepath.Join(dir, "overlays"),
		CaptureFormat:     "v4l2",
		CaptureDevice:     "/dev/video0",
		SegmentDuration:   2,
		PlaylistWindow:    10,
		MaxActiveSegments: 50,
		TrashRetention:    time.Hour,
		PollInterval:      10 * time.Millisecond,
		StopGrace:         50 * time.Millisecond,
		VideoPreset:       "veryfast",
		VideoBitrate:      "2500k",
		VideoMaxRate:      "3000k",
		VideoBufSize:      "6000k",
		GOPSize:           60,
		AudioBitrate:      "128k",
		AudioSampleRate:   44100,
		AudioChannels:     2,
		StreamWidth:       1280,
		StreamHeight:      720,
		BannerHeight:      150,
		MaxUploadBytes:    64 << 20,
	}
}

// newTestRig wires a full orchestrator around a fake launcher.
func newTestRig(t *testing.T) (*Orchestrator, *fakeLauncher, Settings) {
	t.Helper()
	settings := testSettings(t)
	log := discardLogger()

	launcher := &fakeLauncher{}
	sup := NewSupervisor(launcher, settings.StopGrace, log)

	trash, err := NewTrashBin(settings.TrashDir(), settings.TrashRetention, log)
	if err != nil {
		t.Fatalf("NewTrashBin: %v", err)
	}
	continuity, err := NewContinuity(settings, sup, trash, log)
	if err != nil {
		t.Fatalf("NewContinuity: %v", err)
	}
	t.Cleanup(continuity.Close)

	overlays, err := NewOverlayManager(settings)
	if err != nil {
		t.Fatalf("NewOverlayManager: %v", err)
	}

	orch := NewOrchestrator(settings, NewQueue(), overlays, continuity, trash, log, nil)
	return orch, launcher, settings
}
