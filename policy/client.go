package policy

import (
	"fmt"
	"net/http"
)

// NewClient builds an HTTP client applying p and sending headers on every request
// unless the request already sets them.
func NewClient(p Policy, headers http.Header) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if p.TLS != nil {
		base.TLSClientConfig = p.TLS.Clone()
	}
	return &http.Client{Transport: &roundTripper{
		base:      base,
		headers:   headers.Clone(),
		httpsOnly: p.Required,
	}}
}

type roundTripper struct {
	base      http.RoundTripper
	headers   http.Header
	httpsOnly bool
}

func (r *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if r.httpsOnly && req.URL.Scheme != SchemeHTTPS {
		return nil, fmt.Errorf("https is required, but got %s request to %s", req.URL.Scheme, req.URL.Host)
	}
	if len(r.headers) == 0 {
		return r.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	for name, values := range r.headers {
		if req.Header.Get(name) != "" {
			continue
		}
		req.Header[name] = append([]string(nil), values...)
	}
	return r.base.RoundTrip(req)
}
