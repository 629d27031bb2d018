// Package termagent runs a local pi agent under a pseudo-terminal. It backs
// the "terminal mode" flow where the agent's own interactive UI is shown and
// the client only injects input and tracks the process lifecycle.
package termagent

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/term"

	"github.com/adragomir/pi.nvim/pkg/logger"
)

// Process wraps one pi agent process attached to a pty.
type Process struct {
	cmd    *exec.Cmd
	output io.Writer
	attach bool

	mu       sync.Mutex
	ptyFile  *os.File
	ttyFile  *os.File
	ownsTTY  bool
	ttyState *term.State
	ttyFD    int
	stopCh   chan struct{}
}

// Option configures a Process.
type Option func(*Process)

// WithOutput mirrors the agent's pty output to w.
func WithOutput(w io.Writer) Option {
	return func(p *Process) { p.output = w }
}

// WithTerminal attaches the caller's terminal: raw mode, keystroke
// forwarding, and window-size propagation.
func WithTerminal() Option {
	return func(p *Process) { p.attach = true }
}

// NewProcess prepares a pi agent invocation. The process is not started yet.
func NewProcess(binary, workDir string, args []string, opts ...Option) *Process {
	cmd := exec.Command(binary, args...)
	cmd.Dir = workDir
	cmd.Env = os.Environ()

	p := &Process{
		cmd:    cmd,
		output: os.Stdout,
		stopCh: make(chan struct{}),
		ttyFD:  -1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the agent under a pty and begins forwarding I/O.
func (p *Process) Start() error {
	ptyFile, err := pty.Start(p.cmd)
	if err != nil {
		return fmt.Errorf("start %s: %w", p.cmd.Path, err)
	}

	p.mu.Lock()
	p.ptyFile = ptyFile
	p.mu.Unlock()

	go func() {
		_, _ = io.Copy(p.output, ptyFile)
	}()

	if p.attach {
		p.attachTerminal(ptyFile)
	}

	logger.Debugf("[termagent] started %s (pid %d)", p.cmd.Path, p.cmd.Process.Pid)
	return nil
}

// attachTerminal puts the caller's terminal in raw mode and forwards
// keystrokes and window-size changes to the agent.
//
// Input is read from /dev/tty rather than os.Stdin so Kill can close the
// handle and unblock the copy goroutine.
func (p *Process) attachTerminal(ptyFile *os.File) {
	tty := os.Stdin
	if term.IsTerminal(int(os.Stdin.Fd())) {
		if ttyFile, err := os.OpenFile("/dev/tty", os.O_RDWR, 0); err == nil {
			tty = ttyFile
			p.mu.Lock()
			p.ttyFile = ttyFile
			p.ownsTTY = true
			p.mu.Unlock()
		}
	}

	if term.IsTerminal(int(tty.Fd())) {
		fd := int(tty.Fd())
		if state, err := term.MakeRaw(fd); err == nil {
			p.mu.Lock()
			p.ttyState = state
			p.ttyFD = fd
			p.mu.Unlock()
		}
	}

	_ = pty.InheritSize(tty, ptyFile)

	go func() {
		_, _ = io.Copy(ptyFile, tty)
	}()
	go p.watchWindowSize()
}

func (p *Process) watchWindowSize() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGWINCH)
	defer signal.Stop(ch)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ch:
			p.mu.Lock()
			ptyFile := p.ptyFile
			tty := p.ttyFile
			p.mu.Unlock()
			if ptyFile == nil {
				return
			}
			if tty == nil {
				tty = os.Stdin
			}
			_ = pty.InheritSize(tty, ptyFile)
		}
	}
}

// Resize sets the agent's terminal size explicitly.
func (p *Process) Resize(rows, cols uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ptyFile == nil {
		return fmt.Errorf("pty not initialized")
	}
	return pty.Setsize(p.ptyFile, &pty.Winsize{Rows: rows, Cols: cols})
}

// SendInput injects raw input as if typed by the user.
func (p *Process) SendInput(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ptyFile == nil {
		return fmt.Errorf("pty not initialized")
	}
	_, err := io.WriteString(p.ptyFile, text)
	return err
}

// SendLine injects text followed by Enter. The short delay keeps the agent's
// UI from treating the newline as part of a paste.
func (p *Process) SendLine(text string) error {
	if err := p.SendInput(text); err != nil {
		return err
	}
	time.Sleep(50 * time.Millisecond)
	return p.SendInput("\r")
}

// Wait blocks until the agent exits and restores the caller's terminal.
func (p *Process) Wait() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	err := p.cmd.Wait()
	p.mu.Lock()
	p.restoreTTYLocked()
	p.mu.Unlock()
	return err
}

// Kill stops the agent: interrupt first so it can restore terminal state,
// then a hard kill shortly after.
func (p *Process) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}

	p.restoreTTYLocked()
	if p.ownsTTY && p.ttyFile != nil {
		_ = p.ttyFile.Close()
		p.ttyFile = nil
		p.ownsTTY = false
	}
	if p.ptyFile != nil {
		_ = p.ptyFile.Close()
		p.ptyFile = nil
	}

	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}

	_ = p.cmd.Process.Signal(os.Interrupt)
	go func(cmd *exec.Cmd) {
		time.Sleep(500 * time.Millisecond)
		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}(p.cmd)
	return nil
}

// IsRunning reports whether the agent process is still alive.
func (p *Process) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return false
	}
	return p.cmd.ProcessState == nil
}

func (p *Process) restoreTTYLocked() {
	if p.ttyState == nil {
		return
	}
	if p.ttyFD >= 0 {
		_ = term.Restore(p.ttyFD, p.ttyState)
	}
	p.ttyState = nil
	p.ttyFD = -1
}
