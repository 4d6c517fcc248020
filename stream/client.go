package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	contentTypeEventStream = "text/event-stream"
	acceptPost             = "application/json, text/event-stream"
)

// Client performs the HTTP exchanges of a streaming MCP transport against a fixed URL.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a client for url; a nil httpClient uses http.DefaultClient.
func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{url: url, httpClient: httpClient}
}

// URL returns the client target URL.
func (c *Client) URL() string {
	return c.url
}

// WithURL returns a client sharing the HTTP client but targeting url.
func (c *Client) WithURL(url string) *Client {
	return &Client{url: url, httpClient: c.httpClient}
}

// OpenStream opens an event stream, resuming after lastEventID when set.
func (c *Client) OpenStream(ctx context.Context, lastEventID *string) (*EventStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	req.Header.Set("Accept", contentTypeEventStream)
	if lastEventID != nil {
		req.Header.Set("Last-Event-ID", *lastEventID)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream %s: %w", c.url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drain(resp.Body)
		return nil, &StatusError{Method: http.MethodGet, URL: c.url, StatusCode: resp.StatusCode}
	}
	values, ok := resp.Header["Content-Type"]
	if !ok || len(values) == 0 {
		drain(resp.Body)
		return nil, &UnexpectedContentTypeError{}
	}
	contentType := values[0]
	if !strings.HasPrefix(contentType, contentTypeEventStream) {
		drain(resp.Body)
		return nil, &UnexpectedContentTypeError{ContentType: &contentType}
	}
	return newEventStream(resp.Body), nil
}

// PostMessage posts a JSON encoded message and discards the response body.
func (c *Client) PostMessage(ctx context.Context, message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create message request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", acceptPost)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post message to %s: %w", c.url, err)
	}
	drain(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: http.MethodPost, URL: c.url, StatusCode: resp.StatusCode}
	}
	return nil
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
