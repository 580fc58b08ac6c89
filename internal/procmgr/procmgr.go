// Package procmgr supervises the single external-backend launcher child
// process: start, graceful-then-forced stop, exit monitoring, and optional
// PTY-captured output. Adapted from the teacher's internal/core/process
// package, narrowed to one child per instance and with auto-restart
// removed — a debuggee that crashes should surface as a terminated session,
// never be silently relaunched underneath the client.
package procmgr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
)

// Status mirrors the teacher's ProcessStatus enum, narrowed to what a
// single supervised child needs.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusExited   Status = "exited"
)

// Process supervises one child process.
type Process struct {
	mu       sync.Mutex
	cmd      *exec.Cmd
	pty      *os.File
	status   Status
	pid      int
	waitDone chan struct{}

	// OnOutput is invoked for each line of the child's captured stdout/
	// stderr when UsePTY is set; nil disables capture entirely.
	OnOutput func(line string)
	// OnExit is invoked once, when the child process terminates for any
	// reason (clean exit, signal, or supervisor-initiated kill).
	OnExit func(exitCode int, err error)
}

// Config describes how to launch the child.
type Config struct {
	Command     string
	Args        []string
	WorkingDir  string
	Environment map[string]string
	UsePTY      bool
}

// New constructs an unstarted Process supervisor.
func New() *Process {
	return &Process{status: StatusStopped}
}

// Start launches the child. ctx governs the child's lifetime: cancelling it
// kills the child at once (exec.CommandContext), without the
// interrupt-then-wait sequence Stop uses.
func (p *Process) Start(ctx context.Context, cfg Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status == StatusRunning {
		return fmt.Errorf("procmgr: process already running")
	}
	p.status = StatusStarting

	p.cmd = exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	p.cmd.Dir = cfg.WorkingDir
	p.cmd.Env = os.Environ()
	for k, v := range cfg.Environment {
		p.cmd.Env = append(p.cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	var err error
	if cfg.UsePTY {
		p.pty, err = pty.Start(p.cmd)
	} else {
		err = p.cmd.Start()
	}
	if err != nil {
		p.status = StatusExited
		return fmt.Errorf("procmgr: start failed: %w", err)
	}

	p.status = StatusRunning
	p.pid = p.cmd.Process.Pid
	p.waitDone = make(chan struct{})

	if cfg.UsePTY && p.OnOutput != nil {
		go p.readPTY()
	}
	go p.monitor()
	return nil
}

func (p *Process) readPTY() {
	buf := make([]byte, 4096)
	var partial []byte
	for {
		n, err := p.pty.Read(buf)
		if n > 0 {
			partial = append(partial, buf[:n]...)
			for {
				idx := indexByte(partial, '\n')
				if idx < 0 {
					break
				}
				p.OnOutput(string(partial[:idx]))
				partial = partial[idx+1:]
			}
		}
		if err != nil {
			if len(partial) > 0 {
				p.OnOutput(string(partial))
			}
			return
		}
	}
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

func (p *Process) monitor() {
	err := p.cmd.Wait()
	close(p.waitDone)

	p.mu.Lock()
	wasStopping := p.status == StatusStopping
	p.status = StatusExited
	p.mu.Unlock()

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
	}
	if wasStopping {
		err = nil
	}
	if p.OnExit != nil {
		p.OnExit(exitCode, err)
	}
}

// Stop sends an interrupt, waits up to 5s for a graceful exit, and force-
// kills on timeout. Safe to call more than once; a non-running process is a
// no-op. Only monitor ever calls cmd.Wait, so Stop always waits on the
// waitDone channel it closes rather than calling Wait itself.
func (p *Process) Stop() error {
	p.mu.Lock()
	if p.status != StatusRunning {
		p.mu.Unlock()
		return nil
	}
	p.status = StatusStopping
	cmd := p.cmd
	waitDone := p.waitDone
	p.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	_ = cmd.Process.Signal(os.Interrupt)

	select {
	case <-waitDone:
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		<-waitDone
	}
	return nil
}

// PID returns the child's process id, or 0 if not running.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// StatusNow returns the current supervised status.
func (p *Process) StatusNow() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}
