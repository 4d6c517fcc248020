package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"cdr.dev/slog/sloggers/slogtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/jsonrpc"
	"github.com/viant/mcp-protocol/schema"
)

type fakePeer struct {
	createErr error
	rootsErr  error
	notifyErr error

	mux      sync.Mutex
	notified []*jsonrpc.Notification
}

func (p *fakePeer) CreateMessage(ctx context.Context, params *schema.CreateMessageRequestParams) (*schema.CreateMessageResult, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	return &schema.CreateMessageResult{}, nil
}

func (p *fakePeer) ListRoots(ctx context.Context, params *schema.ListRootsRequestParams) (*schema.ListRootsResult, error) {
	if p.rootsErr != nil {
		return nil, p.rootsErr
	}
	return &schema.ListRootsResult{}, nil
}

func (p *fakePeer) Notify(ctx context.Context, notification *jsonrpc.Notification) error {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.notified = append(p.notified, notification)
	return p.notifyErr
}

func (p *fakePeer) methods() []string {
	p.mux.Lock()
	defer p.mux.Unlock()
	var ret []string
	for _, n := range p.notified {
		ret = append(ret, n.Method)
	}
	return ret
}

func TestHandler_CreateMessage(t *testing.T) {
	peerErr := jsonrpc.NewError(-32001, "user rejected sampling", nil)
	var testCases = []struct {
		description   string
		peerErr       error
		expectSame    *jsonrpc.Error
		expectCode    int
		expectMessage string
	}{
		{description: "success"},
		{description: "peer protocol error kept verbatim", peerErr: peerErr, expectSame: peerErr},
		{description: "wrapped peer protocol error kept verbatim", peerErr: fmt.Errorf("relay: %w", peerErr), expectSame: peerErr},
		{description: "other failure becomes internal", peerErr: errors.New("downstream disconnected"), expectCode: jsonrpc.NewInternalError("", nil).Code, expectMessage: "downstream disconnected"},
	}
	for _, testCase := range testCases {
		handler := New(&fakePeer{createErr: testCase.peerErr}, WithLogger(slogtest.Make(t, nil)))
		result, rpcErr := handler.CreateMessage(context.Background(), &schema.CreateMessageRequestParams{})
		switch {
		case testCase.expectSame != nil:
			assert.Same(t, testCase.expectSame, rpcErr, testCase.description)
			assert.Nil(t, result, testCase.description)
		case testCase.expectMessage != "":
			require.NotNil(t, rpcErr, testCase.description)
			assert.Equal(t, testCase.expectCode, rpcErr.Code, testCase.description)
			assert.Contains(t, rpcErr.Message, testCase.expectMessage, testCase.description)
		default:
			assert.Nil(t, rpcErr, testCase.description)
			assert.NotNil(t, result, testCase.description)
		}
	}
}

func TestHandler_ListRoots(t *testing.T) {
	handler := New(&fakePeer{rootsErr: errors.New("no roots")})
	_, rpcErr := handler.ListRoots(context.Background(), &schema.ListRootsRequestParams{})
	require.NotNil(t, rpcErr)
	assert.Contains(t, rpcErr.Message, "no roots")
}

func TestHandler_Serve(t *testing.T) {
	var testCases = []struct {
		description string
		method      string
		params      string
		peer        *fakePeer
		expectErr   bool
		expectCode  int
	}{
		{description: "sampling", method: schema.MethodSamplingCreateMessage, params: `{"messages":[],"maxTokens":1}`, peer: &fakePeer{}},
		{description: "sampling without max tokens", method: schema.MethodSamplingCreateMessage, params: `{"messages":[]}`, peer: &fakePeer{}, expectErr: true, expectCode: jsonrpc.InvalidParams},
		{description: "roots", method: schema.MethodRootsList, peer: &fakePeer{}},
		{description: "ping", method: schema.MethodPing, peer: &fakePeer{}},
		{description: "roots failure", method: schema.MethodRootsList, peer: &fakePeer{rootsErr: jsonrpc.NewError(-32001, "denied", nil)}, expectErr: true, expectCode: -32001},
		{description: "invalid params", method: schema.MethodSamplingCreateMessage, params: `[1,2]`, peer: &fakePeer{}, expectErr: true, expectCode: jsonrpc.InvalidParams},
		{description: "unknown method", method: "elicitation/unknown", peer: &fakePeer{}, expectErr: true, expectCode: jsonrpc.NewMethodNotFound("", nil).Code},
	}
	for _, testCase := range testCases {
		handler := New(testCase.peer)
		request := &jsonrpc.Request{Jsonrpc: jsonrpc.Version, Id: 3, Method: testCase.method}
		if testCase.params != "" {
			request.Params = json.RawMessage(testCase.params)
		}
		response := &jsonrpc.Response{}
		handler.Serve(context.Background(), request, response)
		assert.Equal(t, request.Id, response.Id, testCase.description)
		if testCase.expectErr {
			require.NotNil(t, response.Error, testCase.description)
			assert.Equal(t, testCase.expectCode, response.Error.Code, testCase.description)
			continue
		}
		assert.Nil(t, response.Error, testCase.description)
		assert.NotEmpty(t, response.Result, testCase.description)
	}
}

func TestHandler_OnNotification(t *testing.T) {
	var testCases = []struct {
		description  string
		notification *jsonrpc.Notification
		expectParams string
	}{
		{description: "cancelled with string id", notification: &jsonrpc.Notification{Method: MethodNotificationCancelled, Params: json.RawMessage(`{"requestId":"r-1","reason":"timeout"}`)}, expectParams: `{"requestId":"r-1","reason":"timeout"}`},
		{description: "progress", notification: &jsonrpc.Notification{Method: MethodNotificationProgress, Params: json.RawMessage(`{"progressToken":5,"progress":0.5}`)}, expectParams: `{"progressToken":5,"progress":0.5}`},
		{description: "resource updated", notification: &jsonrpc.Notification{Method: MethodNotificationResourceUpdated, Params: json.RawMessage(`{"uri":"file:///a"}`)}, expectParams: `{"uri":"file:///a"}`},
		{description: "tool list changed", notification: &jsonrpc.Notification{Method: MethodNotificationToolListChanged}},
		{description: "prompt list changed", notification: &jsonrpc.Notification{Method: MethodNotificationPromptListChanged}},
		{description: "resource list changed", notification: &jsonrpc.Notification{Method: MethodNotificationResourceListChanged}},
	}
	for _, testCase := range testCases {
		peer := &fakePeer{}
		New(peer).OnNotification(context.Background(), testCase.notification)
		require.Len(t, peer.notified, 1, testCase.description)
		assert.Equal(t, testCase.notification.Method, peer.notified[0].Method, testCase.description)
		if testCase.expectParams == "" {
			assert.Empty(t, peer.notified[0].Params, testCase.description)
			continue
		}
		assert.JSONEq(t, testCase.expectParams, string(peer.notified[0].Params), testCase.description)
	}
}

func TestHandler_NotificationFailureIsSwallowed(t *testing.T) {
	peer := &fakePeer{notifyErr: errors.New("peer gone")}
	handler := New(peer, WithLogger(slogtest.Make(t, nil)))
	assert.NotPanics(t, func() {
		handler.OnLoggingMessage(context.Background(), &schema.LoggingMessageNotificationParams{Level: schema.Info, Data: "hello"})
		handler.OnToolListChanged(context.Background())
		handler.OnNotification(context.Background(), &jsonrpc.Notification{Method: MethodNotificationProgress, Params: json.RawMessage(`not-json`)})
	})
	assert.Equal(t, []string{MethodNotificationLoggingMessage, MethodNotificationToolListChanged}, peer.methods())
}

func TestHandler_ConcurrentNotifications(t *testing.T) {
	peer := &fakePeer{}
	handler := New(peer)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handler.OnProgress(context.Background(), &ProgressParams{ProgressToken: i, Progress: float64(i)})
		}(i)
	}
	wg.Wait()
	assert.Len(t, peer.methods(), 20)
}
