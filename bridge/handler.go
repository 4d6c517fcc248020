package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cdr.dev/slog"
	"github.com/viant/jsonrpc"
	"github.com/viant/jsonrpc/transport"
	"github.com/viant/mcp-protocol/schema"
)

// Handler serves upstream server-initiated traffic by delegating to one peer.
// It keeps no state besides the peer and is safe for concurrent use.
type Handler struct {
	peer   Peer
	logger slog.Logger
}

// Option customises a Handler.
type Option func(h *Handler)

// WithLogger sets the logger used to report dropped notifications.
func WithLogger(logger slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// New creates a handler relaying to peer.
func New(peer Peer, options ...Option) *Handler {
	ret := &Handler{peer: peer, logger: slog.Make()}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

func (h *Handler) Serve(ctx context.Context, request *jsonrpc.Request, response *jsonrpc.Response) {
	response.Id = request.Id
	response.Jsonrpc = request.Jsonrpc
	switch request.Method {
	case schema.MethodSamplingCreateMessage:
		params := &schema.CreateMessageRequestParams{}
		if err := decode(request.Params, params); err != nil {
			response.Error = jsonrpc.NewInvalidParamsError(err.Error(), request.Params)
			return
		}
		result, rpcErr := h.CreateMessage(ctx, params)
		h.setResponse(response, result, rpcErr)
	case schema.MethodRootsList:
		params := &schema.ListRootsRequestParams{}
		if err := decode(request.Params, params); err != nil {
			response.Error = jsonrpc.NewInvalidParamsError(err.Error(), request.Params)
			return
		}
		result, rpcErr := h.ListRoots(ctx, params)
		h.setResponse(response, result, rpcErr)
	case schema.MethodPing:
		response.Result = json.RawMessage("{}")
	default:
		response.Error = jsonrpc.NewMethodNotFound(fmt.Sprintf("method %s not found", request.Method), nil)
	}
}

// CreateMessage forwards a sampling request to the peer.
func (h *Handler) CreateMessage(ctx context.Context, params *schema.CreateMessageRequestParams) (*schema.CreateMessageResult, *jsonrpc.Error) {
	result, err := h.peer.CreateMessage(ctx, params)
	if err != nil {
		return nil, protocolError(err)
	}
	return result, nil
}

// ListRoots forwards a roots request to the peer.
func (h *Handler) ListRoots(ctx context.Context, params *schema.ListRootsRequestParams) (*schema.ListRootsResult, *jsonrpc.Error) {
	result, err := h.peer.ListRoots(ctx, params)
	if err != nil {
		return nil, protocolError(err)
	}
	return result, nil
}

func (h *Handler) OnNotification(ctx context.Context, notification *jsonrpc.Notification) {
	var err error
	switch notification.Method {
	case MethodNotificationCancelled:
		params := &CancelledParams{}
		if err = decode(notification.Params, params); err == nil {
			h.OnCancelled(ctx, params)
		}
	case MethodNotificationProgress:
		params := &ProgressParams{}
		if err = decode(notification.Params, params); err == nil {
			h.OnProgress(ctx, params)
		}
	case MethodNotificationLoggingMessage:
		params := &schema.LoggingMessageNotificationParams{}
		if err = decode(notification.Params, params); err == nil {
			h.OnLoggingMessage(ctx, params)
		}
	case MethodNotificationResourceUpdated:
		params := &ResourceUpdatedParams{}
		if err = decode(notification.Params, params); err == nil {
			h.OnResourceUpdated(ctx, params)
		}
	case MethodNotificationPromptListChanged:
		h.OnPromptListChanged(ctx)
	case MethodNotificationResourceListChanged:
		h.OnResourceListChanged(ctx)
	case MethodNotificationToolListChanged:
		h.OnToolListChanged(ctx)
	default:
		h.logger.Debug(ctx, "ignoring upstream notification", slog.F("method", notification.Method))
	}
	if err != nil {
		h.logger.Warn(ctx, "invalid upstream notification", slog.F("method", notification.Method), slog.Error(err))
	}
}

func (h *Handler) OnCancelled(ctx context.Context, params *CancelledParams) {
	h.notify(ctx, MethodNotificationCancelled, params)
}

func (h *Handler) OnProgress(ctx context.Context, params *ProgressParams) {
	h.notify(ctx, MethodNotificationProgress, params)
}

func (h *Handler) OnLoggingMessage(ctx context.Context, params *schema.LoggingMessageNotificationParams) {
	h.notify(ctx, MethodNotificationLoggingMessage, params)
}

func (h *Handler) OnResourceUpdated(ctx context.Context, params *ResourceUpdatedParams) {
	h.notify(ctx, MethodNotificationResourceUpdated, params)
}

func (h *Handler) OnPromptListChanged(ctx context.Context) {
	h.notify(ctx, MethodNotificationPromptListChanged, nil)
}

func (h *Handler) OnResourceListChanged(ctx context.Context) {
	h.notify(ctx, MethodNotificationResourceListChanged, nil)
}

func (h *Handler) OnToolListChanged(ctx context.Context) {
	h.notify(ctx, MethodNotificationToolListChanged, nil)
}

// notify never fails: notifications are best effort.
func (h *Handler) notify(ctx context.Context, method string, params any) {
	notification := &jsonrpc.Notification{Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			h.logger.Warn(ctx, "failed to encode notification", slog.F("method", method), slog.Error(err))
			return
		}
		notification.Params = data
	}
	if err := h.peer.Notify(ctx, notification); err != nil {
		h.logger.Warn(ctx, "failed to relay notification to peer", slog.F("method", method), slog.Error(err))
	}
}

func (h *Handler) setResponse(response *jsonrpc.Response, result any, rpcErr *jsonrpc.Error) {
	if rpcErr != nil {
		response.Error = rpcErr
		return
	}
	var err error
	if response.Result, err = json.Marshal(result); err != nil {
		response.Error = jsonrpc.NewInternalError(err.Error(), nil)
	}
}

// protocolError keeps a peer protocol error as is and wraps anything else as internal.
func protocolError(err error) *jsonrpc.Error {
	var rpcErr *jsonrpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return jsonrpc.NewInternalError(err.Error(), nil)
}

func decode(data json.RawMessage, target any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, target)
}

var _ transport.Handler = (*Handler)(nil)
