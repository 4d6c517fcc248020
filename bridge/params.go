package bridge

import "github.com/viant/mcp-protocol/schema"

// Notification methods not declared by the schema package.
const (
	MethodNotificationProgress            = "notifications/progress"
	MethodNotificationPromptListChanged   = "notifications/prompts/list_changed"
	MethodNotificationResourceListChanged = "notifications/resources/list_changed"
	MethodNotificationToolListChanged     = "notifications/tools/list_changed"
)

const (
	MethodNotificationCancelled       = schema.MethodNotificationCancel
	MethodNotificationLoggingMessage  = schema.MethodNotificationMessage
	MethodNotificationResourceUpdated = schema.MethodNotificationResourceUpdated
)

// CancelledParams accepts both numeric and string request ids.
type CancelledParams struct {
	RequestId any            `json:"requestId"`
	Reason    *string        `json:"reason,omitempty"`
	Meta      map[string]any `json:"_meta,omitempty"`
}

type ProgressParams struct {
	ProgressToken any            `json:"progressToken"`
	Progress      float64        `json:"progress"`
	Total         *float64       `json:"total,omitempty"`
	Message       *string        `json:"message,omitempty"`
	Meta          map[string]any `json:"_meta,omitempty"`
}

type ResourceUpdatedParams struct {
	URI  string         `json:"uri"`
	Meta map[string]any `json:"_meta,omitempty"`
}
