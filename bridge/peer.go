package bridge

import (
	"context"

	"github.com/viant/jsonrpc"
	"github.com/viant/mcp-protocol/schema"
)

// Peer is the downstream endpoint upstream traffic is relayed to.
// A returned *jsonrpc.Error is treated as the peer's own protocol error.
type Peer interface {
	CreateMessage(ctx context.Context, params *schema.CreateMessageRequestParams) (*schema.CreateMessageResult, error)
	ListRoots(ctx context.Context, params *schema.ListRootsRequestParams) (*schema.ListRootsResult, error)
	Notify(ctx context.Context, notification *jsonrpc.Notification) error
}
