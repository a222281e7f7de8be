// Package execx runs the host utilities the shim drives (the recon daemon
// CLI, tcpdump, iw, pgrep). Every call carries a hard timeout and reports
// non-zero exits as data rather than errors.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ErrTimeout is returned when a command outlives its deadline.
var ErrTimeout = errors.New("command timed out")

// Result is the outcome of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Output returns trimmed stdout, falling back to stderr. The recon daemon
// CLI writes its data to stderr.
func (r Result) Output() string {
	if out := strings.TrimSpace(r.Stdout); out != "" {
		return out
	}
	return strings.TrimSpace(r.Stderr)
}

// OK reports a zero exit status.
func (r Result) OK() bool { return r.ExitCode == 0 }

// Process is a long-running child started with Start.
type Process interface {
	Pid() int
	// Stdout is nil unless the process was started with a pipe.
	Stdout() io.Reader
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Terminate sends SIGTERM, waits up to grace, then kills.
	Terminate(grace time.Duration) error
}

// Runner abstracts process execution so monitors can be tested without the
// host tools installed.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error)
	Start(name string, args []string, pipeStdout bool) (Process, error)
}

// ExecRunner runs real processes via os/exec.
type ExecRunner struct{}

// NewRunner returns a Runner backed by os/exec.
func NewRunner() *ExecRunner { return &ExecRunner{} }

// Run executes name with args and waits for it to finish or for timeout.
func (ExecRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if ctx.Err() == context.DeadlineExceeded {
		res.ExitCode = -1
		return res, fmt.Errorf("%s: %w", name, ErrTimeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		res.ExitCode = -1
		return res, fmt.Errorf("failed to run %s: %w", name, err)
	}
	return res, nil
}

// Start launches name in the background. The child is not tied to any
// context; callers stop it with Terminate.
func (ExecRunner) Start(name string, args []string, pipeStdout bool) (Process, error) {
	cmd := exec.Command(name, args...)
	p := &execProcess{cmd: cmd, done: make(chan struct{})}

	// An os.Pipe we own, rather than cmd.StdoutPipe, so that Wait does not
	// close the read end while a reader is still draining it.
	var writeEnd *os.File
	if pipeStdout {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
		}
		cmd.Stdout = w
		p.stdout, writeEnd = r, w
	}
	if err := cmd.Start(); err != nil {
		if writeEnd != nil {
			writeEnd.Close()
			p.stdout.(*os.File).Close()
		}
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}
	if writeEnd != nil {
		writeEnd.Close()
	}
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
	done   chan struct{}
	once   sync.Once
}

func (p *execProcess) Pid() int              { return p.cmd.Process.Pid }
func (p *execProcess) Stdout() io.Reader     { return p.stdout }
func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Terminate(grace time.Duration) error {
	var err error
	p.once.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}
		if sigErr := p.cmd.Process.Signal(syscall.SIGTERM); sigErr != nil {
			err = fmt.Errorf("failed to signal pid %d: %w", p.Pid(), sigErr)
		}
		select {
		case <-p.done:
		case <-time.After(grace):
			if killErr := p.cmd.Process.Kill(); killErr != nil {
				err = fmt.Errorf("failed to kill pid %d: %w", p.Pid(), killErr)
			}
			select {
			case <-p.done:
			case <-time.After(grace):
			}
		}
	})
	return err
}
