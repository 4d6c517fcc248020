package pool

import (
	"context"
	"fmt"

	"github.com/viant/mcp-protocol/schema"

	"github.com/viant/mcprelay/openapi"
	"github.com/viant/mcprelay/session"
	"github.com/viant/mcprelay/target"
)

// HandleKind identifies how an upstream is reached.
type HandleKind string

const (
	HandleSession HandleKind = "session"
	HandleRest    HandleKind = "rest"
)

// Upstream is a cached connection to one target. Exactly one of Session or Rest is set.
type Upstream struct {
	Name    string
	Filters target.Filters
	Session *session.Session
	Rest    *openapi.Handler
	cancel  context.CancelFunc
	// generation of the target definition the upstream was connected with
	generation context.Context
}

// Kind returns the handle kind.
func (u *Upstream) Kind() HandleKind {
	if u.Rest != nil {
		return HandleRest
	}
	return HandleSession
}

// Stale reports whether the target definition the upstream was connected with has
// since been replaced or removed.
func (u *Upstream) Stale() bool {
	return u.generation != nil && u.generation.Err() != nil
}

// ListTools returns the upstream tools passing the target filters.
func (u *Upstream) ListTools(ctx context.Context) ([]schema.Tool, error) {
	var tools []schema.Tool
	switch {
	case u.Rest != nil:
		descriptors, err := u.Rest.ListTools()
		if err != nil {
			return nil, err
		}
		tools = descriptors
	case u.Session != nil:
		result, err := u.Session.ListTools(ctx, nil)
		if err != nil {
			return nil, err
		}
		tools = result.Tools
	default:
		return nil, fmt.Errorf("upstream %v has no handle", u.Name)
	}
	ret := make([]schema.Tool, 0, len(tools))
	for _, tool := range tools {
		if u.Filters.Allow(tool.Name) {
			ret = append(ret, tool)
		}
	}
	return ret, nil
}

// CallTool invokes a tool allowed by the target filters.
func (u *Upstream) CallTool(ctx context.Context, params *schema.CallToolRequestParams) (*schema.CallToolResult, error) {
	if !u.Filters.Allow(params.Name) {
		return nil, fmt.Errorf("tool %v is not exposed by %v", params.Name, u.Name)
	}
	switch {
	case u.Rest != nil:
		return u.Rest.CallTool(ctx, params)
	case u.Session != nil:
		return u.Session.CallTool(ctx, params)
	}
	return nil, fmt.Errorf("upstream %v has no handle", u.Name)
}

// Close ends the session, if any, and releases the connection lifetime.
func (u *Upstream) Close() error {
	var err error
	if u.Session != nil {
		err = u.Session.Close()
	}
	if u.cancel != nil {
		u.cancel()
	}
	return err
}
