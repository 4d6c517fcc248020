package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/transport"
	"github.com/viant/mcp-protocol/schema"
	"go.uber.org/goleak"
)

// mockTransport answers requests with canned results keyed by method.
type mockTransport struct {
	mux      sync.Mutex
	results  map[string]string
	errors   map[string]*jsonrpc.Error
	methods  []string
	notified []string
	closed   int
}

func (m *mockTransport) Send(ctx context.Context, r *jsonrpc.Request) (*jsonrpc.Response, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.methods = append(m.methods, r.Method)
	if rpcErr, ok := m.errors[r.Method]; ok {
		return &jsonrpc.Response{Jsonrpc: jsonrpc.Version, Error: rpcErr}, nil
	}
	result, ok := m.results[r.Method]
	if !ok {
		return nil, errors.New("connection reset")
	}
	return &jsonrpc.Response{Jsonrpc: jsonrpc.Version, Result: json.RawMessage(result)}, nil
}

func (m *mockTransport) Notify(ctx context.Context, n *jsonrpc.Notification) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.notified = append(m.notified, n.Method)
	return nil
}

func (m *mockTransport) Close() error {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.closed++
	return nil
}

var _ transport.Transport = (*mockTransport)(nil)

func newMockTransport() *mockTransport {
	return &mockTransport{results: map[string]string{
		schema.MethodInitialize: `{"protocolVersion":"2025-06-18","serverInfo":{"name":"upstream","version":"1.0"},"capabilities":{}}`,
		schema.MethodToolsList:  `{"tools":[{"name":"echo","inputSchema":{"type":"object"}}]}`,
		schema.MethodPing:       `{}`,
	}, errors: map[string]*jsonrpc.Error{}}
}

func TestServe(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	aTransport := newMockTransport()
	aSession, err := Serve(context.Background(), aTransport, WithClientInfo("test", "1"))
	require.NoError(t, err)
	assert.Equal(t, "upstream", aSession.InitializeResult().ServerInfo.Name)
	assert.Equal(t, []string{schema.MethodNotificationInitialized}, aTransport.notified)

	tools, err := aSession.ListTools(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, tools.Tools, 1)
	assert.Equal(t, "echo", tools.Tools[0].Name)
	require.NoError(t, aSession.Ping(context.Background()))

	require.NoError(t, aSession.Close())
	require.NoError(t, aSession.Close())
	assert.Equal(t, 1, aTransport.closed)
}

func TestServe_ClosesWhenContextEnds(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx, cancel := context.WithCancel(context.Background())
	aTransport := newMockTransport()
	aSession, err := Serve(ctx, aTransport)
	require.NoError(t, err)
	cancel()
	<-aSession.Done()
	aTransport.mux.Lock()
	defer aTransport.mux.Unlock()
	assert.Equal(t, 1, aTransport.closed)
}

func TestServe_HandshakeFailure(t *testing.T) {
	aTransport := newMockTransport()
	aTransport.errors[schema.MethodInitialize] = jsonrpc.NewInternalError("boom", nil)
	_, err := Serve(context.Background(), aTransport)
	require.Error(t, err)
	var rpcErr *jsonrpc.Error
	assert.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, 1, aTransport.closed)
}

func TestSession_CallToolError(t *testing.T) {
	aTransport := newMockTransport()
	aTransport.errors[schema.MethodToolsCall] = jsonrpc.NewError(jsonrpc.InvalidParams, "bad args", nil)
	aSession, err := Serve(context.Background(), aTransport)
	require.NoError(t, err)
	defer aSession.Close()
	_, err = aSession.CallTool(context.Background(), &schema.CallToolRequestParams{Name: "echo"})
	var rpcErr *jsonrpc.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "bad args", rpcErr.Message)
}
