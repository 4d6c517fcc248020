package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/transport"
	"github.com/viant/mcp-protocol/schema"

	"github.com/viant/mcprelay/bridge"
)

// Client relays sampling, roots and notifications to the downstream MCP client
// over the transport the downstream session is served on.
type Client struct {
	implements map[string]bool
	transport  transport.Transport
	nextID     atomic.Uint64
}

// NewClient creates a downstream peer; capabilities restrict which requests are relayed.
// A nil capabilities value relays everything.
func NewClient(aTransport transport.Transport, capabilities *schema.ClientCapabilities) *Client {
	ret := &Client{transport: aTransport}
	if capabilities != nil {
		ret.implements = map[string]bool{}
		if capabilities.Roots != nil {
			ret.implements[schema.MethodRootsList] = true
		}
		if capabilities.Sampling != nil {
			ret.implements[schema.MethodSamplingCreateMessage] = true
		}
	}
	return ret
}

// Implements reports whether the downstream client accepts method.
func (c *Client) Implements(method string) bool {
	if c.implements == nil {
		return true
	}
	return c.implements[method]
}

func (c *Client) CreateMessage(ctx context.Context, params *schema.CreateMessageRequestParams) (*schema.CreateMessageResult, error) {
	return send[schema.CreateMessageRequestParams, schema.CreateMessageResult](ctx, c, schema.MethodSamplingCreateMessage, params)
}

func (c *Client) ListRoots(ctx context.Context, params *schema.ListRootsRequestParams) (*schema.ListRootsResult, error) {
	return send[schema.ListRootsRequestParams, schema.ListRootsResult](ctx, c, schema.MethodRootsList, params)
}

func (c *Client) Notify(ctx context.Context, notification *jsonrpc.Notification) error {
	return c.transport.Notify(ctx, notification)
}

// send marshals parameters, sends the request and unmarshals the result.
func send[P any, R any](ctx context.Context, c *Client, method string, parameters *P) (*R, error) {
	if !c.Implements(method) {
		return nil, jsonrpc.NewMethodNotFound(fmt.Sprintf("downstream client does not support %v", method), nil)
	}
	req, err := jsonrpc.NewRequest(method, parameters)
	if err != nil {
		return nil, jsonrpc.NewInvalidRequest(err.Error(), nil)
	}
	req.Id = c.nextID.Add(1)
	response, err := c.transport.Send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to send %v to downstream client: %w", method, err)
	}
	if response.Error != nil {
		return nil, response.Error
	}
	var result R
	if err = json.Unmarshal(response.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %v result: %w", method, err)
	}
	return &result, nil
}

var _ bridge.Peer = (*Client)(nil)
