package playout

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Process is one running transcoding engine instance. The engine is opaque:
// the supervisor only starts it, signals it, and observes its exit.
type Process interface {
	// Signal delivers sig to the process.
	Signal(sig os.Signal) error
	// Kill terminates the process immediately.
	Kill() error
	// Done is closed once the process has actually exited.
	Done() <-chan struct{}
	// ExitCode reports the exit code after Done is closed; -1 before exit
	// or when the process was killed.
	ExitCode() int
	// Pid reports the OS process id, for logs.
	Pid() int
}

// Launcher starts engine processes. The exec-backed implementation is used in
// production; tests substitute a fake so no process is ever spawned.
type Launcher interface {
	// Check verifies the engine can be launched at all (binary resolvable).
	Check() error
	// Launch starts the engine with the given arguments.
	Launch(args []string) (Process, error)
}

// ExecLauncher launches the engine binary via os/exec.
type ExecLauncher struct {
	Binary string
}

// Check implements Launcher.Check.
func (l *ExecLauncher) Check() error {
	if _, err := exec.LookPath(l.Binary); err != nil {
		return fmt.Errorf("%w: %s", ErrEngineMissing, l.Binary)
	}
	return nil
}

// Launch implements Launcher.Launch.
func (l *ExecLauncher) Launch(args []string) (Process, error) {
	if err := l.Check(); err != nil {
		return nil, err
	}

	cmd := exec.Command(l.Binary, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch engine: %w", err)
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func (p *execProcess) Signal(sig os.Signal) error { return p.cmd.Process.Signal(sig) }
func (p *execProcess) Kill() error                { return p.cmd.Process.Kill() }
func (p *execProcess) Done() <-chan struct{}      { return p.done }
func (p *execProcess) Pid() int                   { return p.cmd.Process.Pid }

func (p *execProcess) ExitCode() int {
	select {
	case <-p.done:
	default:
		return -1
	}
	if p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// SessionHandle identifies one engine run bound to one source.
type SessionHandle struct {
	Source    SourceDescriptor
	Overlay   OverlayConfig
	Output    OutputConfig
	StartedAt time.Time

	proc Process
}

// Done is closed once the session's process has exited.
func (h *SessionHandle) Done() <-chan struct{} { return h.proc.Done() }

// ExitCode reports the process exit code after Done is closed.
func (h *SessionHandle) ExitCode() int { return h.proc.ExitCode() }

// Supervisor drives exactly one external transcoding process at a time.
// StartSession always awaits the confirmed death of any previous process
// before launching the next, so two engines never race on the output
// directory.
type Supervisor struct {
	launcher  Launcher
	stopGrace time.Duration
	log       *slog.Logger

	mu      sync.Mutex
	current *SessionHandle
}

// NewSupervisor returns a supervisor using the given launcher. stopGrace
// bounds the graceful-termination wait before escalating to a kill.
func NewSupervisor(launcher Launcher, stopGrace time.Duration, log *slog.Logger) *Supervisor {
	if stopGrace <= 0 {
		stopGrace = 2 * time.Second
	}
	return &Supervisor{launcher: launcher, stopGrace: stopGrace, log: log}
}

// Check verifies the engine is launchable without starting anything.
func (s *Supervisor) Check() error {
	return s.launcher.Check()
}

// StartSession terminates any previous process, awaits its death, then
// launches the engine for the given source. A launch failure leaves no
// session active and is surfaced to the caller.
func (s *Supervisor) StartSession(src SourceDescriptor, overlay OverlayConfig, out OutputConfig) (*SessionHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.terminateLocked(s.current)
		s.current = nil
	}

	args := BuildEngineArgs(src, overlay, out)
	proc, err := s.launcher.Launch(args)
	if err != nil {
		return nil, err
	}

	h := &SessionHandle{
		Source:    src,
		Overlay:   overlay,
		Output:    out,
		StartedAt: time.Now().UTC(),
		proc:      proc,
	}
	s.current = h

	s.log.Info("engine started",
		slog.String("source", string(src.Kind)),
		slog.String("label", src.Label),
		slog.Int("pid", proc.Pid()),
		slog.Int64("start_number", out.StartNumber),
	)
	return h, nil
}

// Stop terminates the session's process and returns once it has exited.
// Stopping an already-exited session is a no-op.
func (s *Supervisor) Stop(h *SessionHandle) {
	if h == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.terminateLocked(h)
	if s.current == h {
		s.current = nil
	}
}

// IsAlive reports whether the session's process is still running. It never
// blocks, so the control loop can poll it on every tick.
func (s *Supervisor) IsAlive(h *SessionHandle) bool {
	if h == nil {
		return false
	}
	select {
	case <-h.proc.Done():
		return false
	default:
		return true
	}
}

// terminateLocked attempts graceful shutdown with a bounded wait, escalates
// to a kill, and only returns once the process has actually exited.
func (s *Supervisor) terminateLocked(h *SessionHandle) {
	select {
	case <-h.proc.Done():
		return
	default:
	}

	if err := h.proc.Signal(syscall.SIGTERM); err != nil {
		s.log.Debug("signal engine", slog.String("error", err.Error()))
	}

	select {
	case <-h.proc.Done():
	case <-time.After(s.stopGrace):
		s.log.Warn("engine did not exit in time, killing", slog.Int("pid", h.proc.Pid()))
		_ = h.proc.Kill()
		<-h.proc.Done()
	}

	s.log.Info("engine stopped", slog.Int("pid", h.proc.Pid()))
}
