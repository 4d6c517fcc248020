package process

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"cdr.dev/slog"
	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/transport"

	"github.com/viant/mcprelay/internal/rpc"
)

const (
	// DefaultWaitDelay bounds how long Close waits for the child's pipes after killing it.
	DefaultWaitDelay = 2 * time.Second

	maxLineSize = 16 * 1024 * 1024
)

// ErrExited reports that the child process exited on its own.
var ErrExited = errors.New("process exited")

// Transport is a JSON-RPC transport over a child process.
type Transport struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	handler transport.Handler
	logger  slog.Logger
	env     map[string]string
	stderr  io.Writer
	rpc     *rpc.Mux

	writeMux sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// Option customises a Transport.
type Option func(t *Transport)

// WithHandler sets the handler receiving server requests and notifications.
func WithHandler(handler transport.Handler) Option {
	return func(t *Transport) { t.handler = handler }
}

// WithEnv adds variables to the environment inherited from the current process.
func WithEnv(env map[string]string) Option {
	return func(t *Transport) { t.env = env }
}

// WithStderr redirects the child's stderr, which is discarded by default.
func WithStderr(w io.Writer) Option {
	return func(t *Transport) { t.stderr = w }
}

// WithLogger sets the transport logger.
func WithLogger(logger slog.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

// Start spawns command with args passed as argv, without a shell. A command that
// cannot be started is reported synchronously.
func Start(ctx context.Context, command string, args []string, options ...Option) (*Transport, error) {
	ret := &Transport{logger: slog.Make(), done: make(chan struct{})}
	for _, opt := range options {
		opt(ret)
	}
	ret.rpc = rpc.NewMux(ret.handler, ret.post, ret.logger)
	ret.ctx, ret.cancel = context.WithCancel(ctx)
	cmd := exec.CommandContext(ret.ctx, command, args...)
	cmd.WaitDelay = DefaultWaitDelay
	cmd.Env = environ(ret.env)
	cmd.Stderr = ret.stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		ret.cancel()
		return nil, fmt.Errorf("failed to open stdin of %v: %w", command, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		ret.cancel()
		return nil, fmt.Errorf("failed to open stdout of %v: %w", command, err)
	}
	if err = cmd.Start(); err != nil {
		ret.cancel()
		return nil, fmt.Errorf("failed to start %v: %w", command, err)
	}
	ret.cmd = cmd
	ret.stdin = stdin
	go ret.run(stdout)
	return ret, nil
}

func environ(env map[string]string) []string {
	ret := os.Environ()
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ret = append(ret, name+"="+env[name])
	}
	return ret
}

func (t *Transport) run(stdout io.Reader) {
	defer close(t.done)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		data := make([]byte, len(line))
		copy(data, line)
		t.rpc.Dispatch(t.ctx, data)
	}
	if err := scanner.Err(); err != nil && t.ctx.Err() == nil {
		t.logger.Warn(t.ctx, "failed to read process output", slog.Error(err))
	}
	waitErr := t.cmd.Wait()
	if t.ctx.Err() != nil {
		t.rpc.Fail(t.ctx.Err())
		return
	}
	t.cancel()
	if waitErr != nil {
		t.rpc.Fail(fmt.Errorf("%w: %v", ErrExited, waitErr))
		return
	}
	t.rpc.Fail(ErrExited)
}

// Pid returns the child process id.
func (t *Transport) Pid() int {
	return t.cmd.Process.Pid
}

// Done is closed once the child has exited and its output was drained.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Err returns the reason the transport stopped.
func (t *Transport) Err() error {
	return t.rpc.Err()
}

// ExitCode returns the child's exit code, or -1 while it runs or when it was killed.
func (t *Transport) ExitCode() int {
	select {
	case <-t.done:
		return t.cmd.ProcessState.ExitCode()
	default:
		return -1
	}
}

// Close kills the child and waits for it to be reaped.
func (t *Transport) Close() error {
	t.cancel()
	_ = t.stdin.Close()
	<-t.done
	return nil
}

// Send writes request to the child and waits for the correlated response.
func (t *Transport) Send(ctx context.Context, request *jsonrpc.Request) (*jsonrpc.Response, error) {
	return t.rpc.Send(ctx, request, t.done)
}

// Notify writes a notification to the child.
func (t *Transport) Notify(ctx context.Context, notification *jsonrpc.Notification) error {
	return t.rpc.Notify(ctx, notification)
}

func (t *Transport) post(ctx context.Context, msg *rpc.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	data = append(data, '\n')
	select {
	case <-t.done:
		if err := t.rpc.Err(); err != nil {
			return err
		}
		return rpc.ErrClosed
	default:
	}
	t.writeMux.Lock()
	_, err = t.stdin.Write(data)
	t.writeMux.Unlock()
	if err == nil {
		return nil
	}
	// a broken pipe usually means the child is exiting; prefer its exit reason
	timer := time.NewTimer(DefaultWaitDelay)
	defer timer.Stop()
	select {
	case <-t.done:
		if exitErr := t.rpc.Err(); exitErr != nil {
			return fmt.Errorf("failed to write to process: %w", exitErr)
		}
	case <-ctx.Done():
	case <-timer.C:
	}
	return fmt.Errorf("failed to write to process: %w", err)
}

var _ transport.Transport = (*Transport)(nil)
