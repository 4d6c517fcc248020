// Package rpc correlates JSON-RPC traffic for client transports that receive server
// messages asynchronously, whatever carries them.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"cdr.dev/slog"
	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/transport"

	"github.com/viant/mcprelay/internal/conv"
)

// ErrClosed is returned when the carrier stopped without recording a reason.
var ErrClosed = errors.New("transport closed")

// Message is a JSON-RPC request, notification or response on the wire.
type Message struct {
	Jsonrpc string          `json:"jsonrpc"`
	Id      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpc.Error  `json:"error,omitempty"`
}

// Poster writes one message to the server.
type Poster func(ctx context.Context, msg *Message) error

// Mux matches responses to pending requests and hands server requests and
// notifications to a handler.
type Mux struct {
	handler transport.Handler
	post    Poster
	logger  slog.Logger

	nextID  atomic.Uint64
	mux     sync.Mutex
	pending map[string]chan *jsonrpc.Response
	err     error
}

// NewMux creates a mux writing through post; handler may be nil.
func NewMux(handler transport.Handler, post Poster, logger slog.Logger) *Mux {
	return &Mux{
		handler: handler,
		post:    post,
		logger:  logger,
		pending: map[string]chan *jsonrpc.Response{},
	}
}

// Dispatch routes one inbound message. Server requests are served in their own
// goroutine; notifications are handled inline to keep their order.
func (m *Mux) Dispatch(ctx context.Context, data []byte) {
	msg := &Message{}
	if err := json.Unmarshal(data, msg); err != nil {
		m.logger.Warn(ctx, "failed to decode message", slog.Error(err))
		return
	}
	key := conv.IDKey(msg.Id)
	switch {
	case msg.Method != "" && key != "":
		go m.serve(ctx, msg)
	case msg.Method != "":
		if m.handler != nil {
			m.handler.OnNotification(ctx, &jsonrpc.Notification{Method: msg.Method, Params: msg.Params})
		}
	default:
		m.deliver(ctx, key, msg)
	}
}

func (m *Mux) serve(ctx context.Context, msg *Message) {
	request := &jsonrpc.Request{Jsonrpc: jsonrpc.Version, Method: msg.Method, Params: msg.Params}
	_ = json.Unmarshal(msg.Id, &request.Id)
	response := &jsonrpc.Response{Id: request.Id, Jsonrpc: jsonrpc.Version}
	if m.handler == nil {
		response.Error = jsonrpc.NewMethodNotFound(fmt.Sprintf("method %s not found", msg.Method), nil)
	} else {
		m.handler.Serve(ctx, request, response)
	}
	reply := &Message{Jsonrpc: jsonrpc.Version, Id: msg.Id, Error: response.Error}
	if response.Error == nil {
		reply.Result = response.Result
		if len(reply.Result) == 0 {
			reply.Result = json.RawMessage("{}")
		}
	}
	if err := m.post(ctx, reply); err != nil {
		m.logger.Warn(ctx, "failed to reply to server request", slog.F("method", msg.Method), slog.Error(err))
	}
}

func (m *Mux) deliver(ctx context.Context, key string, msg *Message) {
	m.mux.Lock()
	ch, ok := m.pending[key]
	delete(m.pending, key)
	m.mux.Unlock()
	if !ok {
		m.logger.Debug(ctx, "dropping uncorrelated response", slog.F("id", key))
		return
	}
	response := &jsonrpc.Response{Jsonrpc: msg.Jsonrpc, Result: msg.Result, Error: msg.Error}
	_ = json.Unmarshal(msg.Id, &response.Id)
	ch <- response
}

// Send writes request and waits for its response. done is closed when the carrier
// stops; a response that arrived first still wins.
func (m *Mux) Send(ctx context.Context, request *jsonrpc.Request, done <-chan struct{}) (*jsonrpc.Response, error) {
	if conv.AnyKey(request.Id) == "" {
		request.Id = m.nextID.Add(1)
	}
	key := conv.AnyKey(request.Id)
	ch := make(chan *jsonrpc.Response, 1)
	m.mux.Lock()
	if m.err != nil {
		err := m.err
		m.mux.Unlock()
		return nil, err
	}
	m.pending[key] = ch
	m.mux.Unlock()

	msg := &Message{Jsonrpc: jsonrpc.Version, Id: mustMarshal(request.Id), Method: request.Method, Params: request.Params}
	if err := m.post(ctx, msg); err != nil {
		m.forget(key)
		return nil, err
	}
	select {
	case response := <-ch:
		return response, nil
	case <-ctx.Done():
		m.forget(key)
		return nil, ctx.Err()
	case <-done:
		m.forget(key)
		select {
		case response := <-ch:
			return response, nil
		default:
		}
		if err := m.Err(); err != nil {
			return nil, err
		}
		return nil, ErrClosed
	}
}

// Notify writes a notification.
func (m *Mux) Notify(ctx context.Context, notification *jsonrpc.Notification) error {
	return m.post(ctx, &Message{Jsonrpc: jsonrpc.Version, Method: notification.Method, Params: notification.Params})
}

// Fail records why the carrier stopped and drops pending requests.
func (m *Mux) Fail(err error) {
	if err == nil {
		err = ErrClosed
	}
	m.mux.Lock()
	m.err = err
	m.pending = map[string]chan *jsonrpc.Response{}
	m.mux.Unlock()
}

// Err returns the reason recorded by Fail.
func (m *Mux) Err() error {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.err
}

func (m *Mux) forget(key string) {
	m.mux.Lock()
	delete(m.pending, key)
	m.mux.Unlock()
}

func mustMarshal(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
