// Package exectest provides a scripted execx.Runner for tests.
package exectest

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"pagershim/internal/execx"
)

// Handler produces the result for one Run call.
type Handler func(args []string) (execx.Result, error)

// Runner records every invocation and answers from handlers registered by
// command-line prefix. The longest matching prefix wins. Unmatched calls
// return Default.
type Runner struct {
	mu       sync.Mutex
	calls    []string
	handlers map[string]Handler
	outputs  map[string]string
	procs    []*Process
	nextPid  int

	Default  execx.Result
	StartErr error
}

// New returns an empty Runner whose unmatched calls exit 0.
func New() *Runner {
	return &Runner{
		handlers: make(map[string]Handler),
		outputs:  make(map[string]string),
		nextPid:  1000,
	}
}

// On answers command lines starting with prefix with res.
func (r *Runner) On(prefix string, res execx.Result) {
	r.OnFunc(prefix, func([]string) (execx.Result, error) { return res, nil })
}

// OnFunc answers command lines starting with prefix with h.
func (r *Runner) OnFunc(prefix string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[prefix] = h
}

// StdoutFor sets the stdout content of processes started as name.
func (r *Runner) StdoutFor(name, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[name] = content
}

// Run implements execx.Runner.
func (r *Runner) Run(_ context.Context, _ time.Duration, name string, args ...string) (execx.Result, error) {
	line := join(name, args)

	r.mu.Lock()
	r.calls = append(r.calls, line)
	var best string
	var handler Handler
	for prefix, h := range r.handlers {
		if strings.HasPrefix(line, prefix) && len(prefix) >= len(best) {
			best, handler = prefix, h
		}
	}
	def := r.Default
	r.mu.Unlock()

	if handler == nil {
		return def, nil
	}
	return handler(args)
}

// Start implements execx.Runner.
func (r *Runner) Start(name string, args []string, pipeStdout bool) (execx.Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, "start "+join(name, args))
	if r.StartErr != nil {
		return nil, r.StartErr
	}

	r.nextPid++
	p := &Process{pid: r.nextPid, Line: join(name, args), done: make(chan struct{})}
	if pipeStdout {
		if out, ok := r.outputs[name]; ok {
			p.stdout = strings.NewReader(out)
		} else {
			pr, pw := io.Pipe()
			p.stdout, p.pipe = pr, pw
		}
	}
	r.procs = append(r.procs, p)
	return p, nil
}

// Calls returns every command line seen so far, Start calls prefixed with
// "start ".
func (r *Runner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// Called reports whether any recorded command line starts with prefix.
func (r *Runner) Called(prefix string) bool {
	for _, c := range r.Calls() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

// Index returns the position of the first call starting with prefix, or -1.
func (r *Runner) Index(prefix string) int {
	for i, c := range r.Calls() {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

// Processes returns the processes started so far.
func (r *Runner) Processes() []*Process {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Process, len(r.procs))
	copy(out, r.procs)
	return out
}

// Process is a fake child process.
type Process struct {
	Line string

	pid        int
	stdout     io.Reader
	pipe       *io.PipeWriter
	done       chan struct{}
	once       sync.Once
	mu         sync.Mutex
	terminated bool
}

func (p *Process) Pid() int              { return p.pid }
func (p *Process) Stdout() io.Reader     { return p.stdout }
func (p *Process) Done() <-chan struct{} { return p.done }

// Terminate marks the process terminated and closes its stdout.
func (p *Process) Terminate(time.Duration) error {
	p.mu.Lock()
	p.terminated = true
	p.mu.Unlock()
	p.exit()
	return nil
}

// Terminated reports whether Terminate was called.
func (p *Process) Terminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}

func (p *Process) exit() {
	p.once.Do(func() {
		if p.pipe != nil {
			_ = p.pipe.Close()
		}
		close(p.done)
	})
}

func join(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
