package openapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/viant/mcp-protocol/schema"
)

// Handler calls a REST API on behalf of MCP tool calls. Each call is a one-shot request
// made with Client, which carries the TLS policy and default headers.
type Handler struct {
	Host   string
	Scheme string
	Prefix string
	Port   int
	Client *http.Client
	Tools  []Tool
}

// BaseURL returns scheme://host:port followed by the path prefix.
func (h *Handler) BaseURL() string {
	return fmt.Sprintf("%s://%s:%d%s", h.Scheme, h.Host, h.Port, h.Prefix)
}

// ListTools returns the MCP descriptors of the exposed operations.
func (h *Handler) ListTools() ([]schema.Tool, error) {
	ret := make([]schema.Tool, 0, len(h.Tools))
	for i := range h.Tools {
		descriptor, err := h.Tools[i].Descriptor()
		if err != nil {
			return nil, err
		}
		ret = append(ret, descriptor)
	}
	return ret, nil
}

func (h *Handler) lookup(name string) (*Tool, bool) {
	for i := range h.Tools {
		if h.Tools[i].Name == name {
			return &h.Tools[i], true
		}
	}
	return nil, false
}

// CallTool maps arguments onto the operation's parameters and body and returns the
// response body as text. Non 2xx responses are reported as tool errors.
func (h *Handler) CallTool(ctx context.Context, params *schema.CallToolRequestParams) (*schema.CallToolResult, error) {
	tool, ok := h.lookup(params.Name)
	if !ok {
		return nil, fmt.Errorf("unknown tool: %v", params.Name)
	}
	req, err := h.request(ctx, tool, params.Arguments)
	if err != nil {
		return nil, err
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %v %v: %w", tool.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %v response: %w", tool.Name, err)
	}
	result := &schema.CallToolResult{}
	text := string(data)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		isError := true
		result.IsError = &isError
		text = fmt.Sprintf("%s %s returned %d: %s", tool.Method, req.URL.Path, resp.StatusCode, text)
	}
	result.Content = []schema.CallToolResultContentElem{schema.TextContent{Type: "text", Text: text}}
	return result, nil
}

func (h *Handler) request(ctx context.Context, tool *Tool, args map[string]interface{}) (*http.Request, error) {
	path := tool.Path
	query := url.Values{}
	headers := http.Header{}
	for _, parameter := range tool.Parameters {
		value, ok := args[parameter.Name]
		if !ok {
			if parameter.Required || parameter.In == "path" {
				return nil, fmt.Errorf("missing required argument: %v", parameter.Name)
			}
			continue
		}
		text := argumentText(value)
		switch parameter.In {
		case "path":
			path = strings.ReplaceAll(path, "{"+parameter.Name+"}", url.PathEscape(text))
		case "query":
			query.Set(parameter.Name, text)
		case "header":
			headers.Set(parameter.Name, text)
		}
	}
	var body io.Reader
	if tool.HasBody {
		if value, ok := args[BodyArgument]; ok {
			data, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("failed to encode request body: %w", err)
			}
			body = bytes.NewReader(data)
			headers.Set("Content-Type", "application/json")
		}
	}
	URL := h.BaseURL() + path
	if len(query) > 0 {
		URL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, tool.Method, URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for name, values := range headers {
		req.Header[name] = values
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func argumentText(value any) string {
	switch actual := value.(type) {
	case string:
		return actual
	case float64:
		return strconv.FormatFloat(actual, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(actual)
	default:
		data, _ := json.Marshal(actual)
		return string(data)
	}
}
