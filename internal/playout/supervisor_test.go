package playout

import (
	"errors"
	"testing"
	"time"
)

func newTestSupervisor(launcher *fakeLauncher) *Supervisor {
	return NewSupervisor(launcher, 50*time.Millisecond, discardLogger())
}

func TestSupervisor_StartSession(t *testing.T) {
	launcher := &fakeLauncher{}
	sup := newTestSupervisor(launcher)

	h, err := sup.StartSession(FileSource("a.mp4", "/videos/a.mp4"), OverlayConfig{}, testOutputConfig(0, false))
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if !sup.IsAlive(h) {
		t.Error("session should be alive after start")
	}
	if !hasRun(launcher.lastArgs(), "-i", "/videos/a.mp4") {
		t.Errorf("engine launched with wrong args: %v", launcher.lastArgs())
	}
}

func TestSupervisor_StartAwaitsPriorDeath(t *testing.T) {
	launcher := &fakeLauncher{}
	sup := newTestSupervisor(launcher)

	h1, err := sup.StartSession(FileSource("a.mp4", "/a.mp4"), OverlayConfig{}, testOutputConfig(0, false))
	if err != nil {
		t.Fatalf("first StartSession: %v", err)
	}

	h2, err := sup.StartSession(FileSource("b.mp4", "/b.mp4"), OverlayConfig{}, testOutputConfig(0, true))
	if err != nil {
		t.Fatalf("second StartSession: %v", err)
	}

	if sup.IsAlive(h1) {
		t.Error("previous session must be dead before the next launches")
	}
	if !sup.IsAlive(h2) {
		t.Error("new session should be alive")
	}
	if n := launcher.overlapCount(); n != 0 {
		t.Errorf("two engine processes were alive at once (%d overlaps)", n)
	}
}

func TestSupervisor_Stop(t *testing.T) {
	launcher := &fakeLauncher{}
	sup := newTestSupervisor(launcher)

	h, err := sup.StartSession(FileSource("a.mp4", "/a.mp4"), OverlayConfig{}, testOutputConfig(0, false))
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	sup.Stop(h)
	if sup.IsAlive(h) {
		t.Error("session alive after Stop")
	}

	// Idempotent on an already-dead session.
	sup.Stop(h)
	sup.Stop(nil)
}

func TestSupervisor_StopEscalatesToKill(t *testing.T) {
	launcher := &fakeLauncher{stubborn: true}
	sup := newTestSupervisor(launcher)

	h, err := sup.StartSession(FileSource("a.mp4", "/a.mp4"), OverlayConfig{}, testOutputConfig(0, false))
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	start := time.Now()
	sup.Stop(h)
	if sup.IsAlive(h) {
		t.Fatal("stubborn process must be killed")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("kill before the grace period elapsed (%v)", elapsed)
	}
	if h.ExitCode() != -1 {
		t.Errorf("killed process exit code = %d, want -1", h.ExitCode())
	}
}

func TestSupervisor_LaunchFailure(t *testing.T) {
	boom := errors.New("spawn failed")
	launcher := &fakeLauncher{failLaunch: boom}
	sup := newTestSupervisor(launcher)

	if _, err := sup.StartSession(FileSource("a.mp4", "/a.mp4"), OverlayConfig{}, testOutputConfig(0, false)); !errors.Is(err, boom) {
		t.Fatalf("StartSession error = %v, want %v", err, boom)
	}

	// A later launch must not be blocked by the failed attempt.
	launcher.failLaunch = nil
	h, err := sup.StartSession(FileSource("b.mp4", "/b.mp4"), OverlayConfig{}, testOutputConfig(0, false))
	if err != nil {
		t.Fatalf("StartSession after failure: %v", err)
	}
	if !sup.IsAlive(h) {
		t.Error("session should be alive")
	}
}

func TestSupervisor_Check(t *testing.T) {
	launcher := &fakeLauncher{failCheck: ErrEngineMissing}
	sup := newTestSupervisor(launcher)

	if err := sup.Check(); !errors.Is(err, ErrEngineMissing) {
		t.Errorf("Check = %v, want ErrEngineMissing", err)
	}
}

func TestSupervisor_ExitCodeReporting(t *testing.T) {
	launcher := &fakeLauncher{}
	sup := newTestSupervisor(launcher)

	h, err := sup.StartSession(FileSource("a.mp4", "/a.mp4"), OverlayConfig{}, testOutputConfig(0, false))
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if h.ExitCode() != -1 {
		t.Errorf("running session exit code = %d, want -1", h.ExitCode())
	}

	launcher.current().exit(1)
	<-h.Done()
	if sup.IsAlive(h) {
		t.Error("session alive after exit")
	}
	if h.ExitCode() != 1 {
		t.Errorf("exit code = %d, want 1", h.ExitCode())
	}
}
