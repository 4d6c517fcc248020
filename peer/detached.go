package peer

import (
	"context"

	"github.com/viant/jsonrpc"
	"github.com/viant/mcp-protocol/schema"

	"github.com/viant/mcprelay/bridge"
)

// Detached is a peer for connections without a downstream client: requests are
// rejected as unsupported and notifications are dropped.
type Detached struct{}

func (Detached) CreateMessage(ctx context.Context, params *schema.CreateMessageRequestParams) (*schema.CreateMessageResult, error) {
	return nil, jsonrpc.NewMethodNotFound("sampling is not available without a downstream client", nil)
}

func (Detached) ListRoots(ctx context.Context, params *schema.ListRootsRequestParams) (*schema.ListRootsResult, error) {
	return &schema.ListRootsResult{}, nil
}

func (Detached) Notify(ctx context.Context, notification *jsonrpc.Notification) error {
	return nil
}

var _ bridge.Peer = Detached{}
