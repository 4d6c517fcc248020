package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"cdr.dev/slog"
	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/transport"
	"github.com/viant/mcp-protocol/schema"
)

// defaultCapabilities advertises the requests relayed back to the downstream peer.
const defaultCapabilities = `{"roots":{"listChanged":true},"sampling":{}}`

// Session is an initialized MCP conversation with an upstream server.
type Session struct {
	transport       transport.Transport
	info            schema.Implementation
	capabilities    *schema.ClientCapabilities
	protocolVersion string
	result          *schema.InitializeResult
	logger          slog.Logger

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Serve performs the initialize handshake over aTransport. The session lives until ctx
// ends or Close is called; either closes the transport when it implements io.Closer.
func Serve(ctx context.Context, aTransport transport.Transport, options ...Option) (*Session, error) {
	ret := &Session{
		transport:       aTransport,
		info:            *schema.NewImplementation("mcprelay", "0.1.0"),
		protocolVersion: schema.LatestProtocolVersion,
		logger:          slog.Make(),
		done:            make(chan struct{}),
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.capabilities == nil {
		ret.capabilities = &schema.ClientCapabilities{}
		if err := json.Unmarshal([]byte(defaultCapabilities), ret.capabilities); err != nil {
			return nil, err
		}
	}
	ctx, ret.cancel = context.WithCancel(ctx)
	result, err := ret.initialize(ctx)
	if err != nil {
		ret.cancel()
		close(ret.done)
		ret.closeTransport()
		return nil, err
	}
	ret.result = result
	go ret.watch(ctx)
	return ret, nil
}

func (s *Session) initialize(ctx context.Context) (*schema.InitializeResult, error) {
	params := &schema.InitializeRequestParams{
		Capabilities:    *s.capabilities,
		ClientInfo:      s.info,
		ProtocolVersion: s.protocolVersion,
	}
	result, err := send[schema.InitializeRequestParams, schema.InitializeResult](ctx, s, schema.MethodInitialize, params)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}
	if err = s.transport.Notify(ctx, &jsonrpc.Notification{Method: schema.MethodNotificationInitialized}); err != nil {
		return nil, fmt.Errorf("failed to notify initialized: %w", err)
	}
	s.logger.Debug(ctx, "session initialized",
		slog.F("server", result.ServerInfo.Name),
		slog.F("protocol_version", result.ProtocolVersion))
	return result, nil
}

func (s *Session) watch(ctx context.Context) {
	<-ctx.Done()
	s.closeTransport()
	close(s.done)
}

func (s *Session) closeTransport() {
	s.closeOnce.Do(func() {
		if closer, ok := s.transport.(io.Closer); ok {
			s.closeErr = closer.Close()
		}
	})
}

// InitializeResult returns the server's handshake response.
func (s *Session) InitializeResult() *schema.InitializeResult {
	return s.result
}

// Done is closed once the session has shut down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close ends the session and waits for the transport to be released.
func (s *Session) Close() error {
	s.cancel()
	<-s.done
	return s.closeErr
}

func (s *Session) ListTools(ctx context.Context, cursor *string) (*schema.ListToolsResult, error) {
	params := &schema.ListToolsRequestParams{Cursor: cursor}
	return send[schema.ListToolsRequestParams, schema.ListToolsResult](ctx, s, schema.MethodToolsList, params)
}

func (s *Session) CallTool(ctx context.Context, params *schema.CallToolRequestParams) (*schema.CallToolResult, error) {
	return send[schema.CallToolRequestParams, schema.CallToolResult](ctx, s, schema.MethodToolsCall, params)
}

func (s *Session) Ping(ctx context.Context) error {
	_, err := send[schema.PingRequestParams, schema.PingResult](ctx, s, schema.MethodPing, &schema.PingRequestParams{})
	return err
}

// send marshals parameters, sends the request and unmarshals the result.
// Upstream protocol errors are returned as *jsonrpc.Error.
func send[P any, R any](ctx context.Context, s *Session, method string, parameters *P) (*R, error) {
	req, err := jsonrpc.NewRequest(method, parameters)
	if err != nil {
		return nil, jsonrpc.NewInvalidRequest(err.Error(), nil)
	}
	response, err := s.transport.Send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to send %v: %w", method, err)
	}
	if response.Error != nil {
		return nil, response.Error
	}
	var result R
	if err = json.Unmarshal(response.Result, &result); err != nil {
		return nil, jsonrpc.NewInternalError(fmt.Sprintf("failed to unmarshal %v result: %v", method, err), nil)
	}
	return &result, nil
}
