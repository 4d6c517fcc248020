package stream

import (
	"fmt"
	"net/http"
)

// UnexpectedContentTypeError reports a stream response that did not declare text/event-stream.
// ContentType is nil when the header was absent.
type UnexpectedContentTypeError struct {
	ContentType *string
}

func (e *UnexpectedContentTypeError) Error() string {
	if e.ContentType == nil {
		return "unexpected content type: <none>"
	}
	return fmt.Sprintf("unexpected content type: %q", *e.ContentType)
}

// StatusError reports a non 2xx response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}
