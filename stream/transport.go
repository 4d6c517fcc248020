package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"cdr.dev/slog"
	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/transport"

	"github.com/viant/mcprelay/internal/rpc"
)

const (
	// DefaultRetryInterval is the fixed delay between stream reconnect attempts.
	DefaultRetryInterval = time.Second
	// DefaultMaxRetries bounds consecutive failed reconnect attempts.
	DefaultMaxRetries = 3

	eventEndpoint = "endpoint"
	eventMessage  = "message"
)

// Transport is a JSON-RPC transport reading server messages from an event stream and
// posting client messages to the message endpoint announced by the server.
type Transport struct {
	stream     *Client
	message    atomic.Pointer[Client]
	handler    transport.Handler
	logger     slog.Logger
	retry      time.Duration
	maxRetries int

	rpc         *rpc.Mux
	mux         sync.Mutex
	lastEventID *string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// TransportOption customises a Transport.
type TransportOption func(t *Transport)

// WithHandler sets the handler receiving server requests and notifications.
func WithHandler(handler transport.Handler) TransportOption {
	return func(t *Transport) { t.handler = handler }
}

// WithRetry sets the fixed reconnect interval and the maximum consecutive attempts.
func WithRetry(interval time.Duration, maxRetries int) TransportOption {
	return func(t *Transport) {
		t.retry = interval
		t.maxRetries = maxRetries
	}
}

// WithMessageURL posts messages to URL instead of waiting for the server endpoint event.
func WithMessageURL(URL string) TransportOption {
	return func(t *Transport) { t.message.Store(t.stream.WithURL(URL)) }
}

// WithLogger sets the transport logger.
func WithLogger(logger slog.Logger) TransportOption {
	return func(t *Transport) { t.logger = logger }
}

// NewTransport creates a transport over client; call Start before use.
func NewTransport(client *Client, options ...TransportOption) *Transport {
	ret := &Transport{
		stream:     client,
		logger:     slog.Make(),
		retry:      DefaultRetryInterval,
		maxRetries: DefaultMaxRetries,
		done:       make(chan struct{}),
	}
	for _, opt := range options {
		opt(ret)
	}
	ret.rpc = rpc.NewMux(ret.handler, ret.post, ret.logger)
	return ret
}

// Start opens the event stream and, unless a message URL was configured, waits for the
// server to announce its message endpoint. The stream keeps running until ctx ends or Close.
func (t *Transport) Start(ctx context.Context) error {
	t.ctx, t.cancel = context.WithCancel(ctx)
	events, err := t.stream.OpenStream(t.ctx, nil)
	if err != nil {
		t.cancel()
		close(t.done)
		return err
	}
	for t.message.Load() == nil {
		event, err := events.Next()
		if err != nil {
			_ = events.Close()
			t.cancel()
			close(t.done)
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("stream ended before endpoint event")
			}
			return fmt.Errorf("failed to receive message endpoint: %w", err)
		}
		t.handleEvent(event)
	}
	go t.run(events)
	return nil
}

// Done is closed once the stream loop stops.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Err returns the reason the stream loop stopped.
func (t *Transport) Err() error {
	return t.rpc.Err()
}

// Close stops the stream loop and fails pending requests.
func (t *Transport) Close() error {
	if t.cancel == nil {
		return nil
	}
	t.cancel()
	<-t.done
	return nil
}

func (t *Transport) run(events *EventStream) {
	defer close(t.done)
	failures := 0
	for {
		t.consume(events)
		_ = events.Close()
		for {
			if !t.sleep() {
				t.rpc.Fail(t.ctx.Err())
				return
			}
			var err error
			events, err = t.stream.OpenStream(t.ctx, t.resumeID())
			if err == nil {
				failures = 0
				break
			}
			failures++
			t.logger.Warn(t.ctx, "failed to reopen event stream",
				slog.F("url", t.stream.URL()),
				slog.F("attempt", failures),
				slog.Error(err))
			if failures >= t.maxRetries {
				t.rpc.Fail(fmt.Errorf("event stream lost after %d attempts: %w", failures, err))
				return
			}
		}
	}
}

func (t *Transport) consume(events *EventStream) {
	for {
		event, err := events.Next()
		if err != nil {
			if t.ctx.Err() == nil {
				t.logger.Debug(t.ctx, "event stream interrupted", slog.F("url", t.stream.URL()), slog.Error(err))
			}
			return
		}
		t.handleEvent(event)
	}
}

func (t *Transport) sleep() bool {
	timer := time.NewTimer(t.retry)
	defer timer.Stop()
	select {
	case <-t.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (t *Transport) resumeID() *string {
	t.mux.Lock()
	defer t.mux.Unlock()
	return t.lastEventID
}

func (t *Transport) handleEvent(event *Event) {
	if event.ID != nil {
		t.mux.Lock()
		t.lastEventID = event.ID
		t.mux.Unlock()
	}
	if event.Retry > 0 {
		t.retry = time.Duration(event.Retry) * time.Millisecond
	}
	if event.Data == "" {
		return
	}
	switch event.Type {
	case eventEndpoint:
		endpoint, err := t.resolve(event.Data)
		if err != nil {
			t.logger.Warn(t.ctx, "invalid message endpoint", slog.F("endpoint", event.Data), slog.Error(err))
			return
		}
		t.message.Store(t.stream.WithURL(endpoint))
	case eventMessage:
		t.rpc.Dispatch(t.ctx, []byte(event.Data))
	default:
		t.logger.Debug(t.ctx, "ignoring event", slog.F("type", event.Type))
	}
}

func (t *Transport) resolve(endpoint string) (string, error) {
	base, err := url.Parse(t.stream.URL())
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// Send posts request and waits for the correlated response from the stream.
func (t *Transport) Send(ctx context.Context, request *jsonrpc.Request) (*jsonrpc.Response, error) {
	return t.rpc.Send(ctx, request, t.done)
}

// Notify posts a notification.
func (t *Transport) Notify(ctx context.Context, notification *jsonrpc.Notification) error {
	return t.rpc.Notify(ctx, notification)
}

func (t *Transport) post(ctx context.Context, msg *rpc.Message) error {
	client := t.message.Load()
	if client == nil {
		return fmt.Errorf("message endpoint is not known yet")
	}
	return client.PostMessage(ctx, msg)
}

var _ transport.Transport = (*Transport)(nil)
