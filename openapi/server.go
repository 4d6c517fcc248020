package openapi

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ServerInfo is the connection info declared by a document. Scheme and Host are nil when
// the document declares no absolute server URL.
type ServerInfo struct {
	Scheme *string
	Host   *string
	Port   int
	Prefix string
}

// ServerInfoFrom derives connection info from the first declared server.
func ServerInfoFrom(doc *Document) (*ServerInfo, error) {
	if len(doc.Servers) == 0 {
		return &ServerInfo{}, nil
	}
	server := doc.Servers[0]
	raw := server.URL
	for name, variable := range server.Variables {
		raw = strings.ReplaceAll(raw, "{"+name+"}", variable.Default)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", server.URL, err)
	}
	ret := &ServerInfo{Prefix: strings.TrimSuffix(parsed.Path, "/")}
	if parsed.Scheme == "" {
		return ret, nil
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("server url %q has no host", server.URL)
	}
	scheme := parsed.Scheme
	host := parsed.Hostname()
	ret.Scheme = &scheme
	ret.Host = &host
	switch port := parsed.Port(); {
	case port != "":
		if ret.Port, err = strconv.Atoi(port); err != nil {
			return nil, fmt.Errorf("invalid server port %q: %w", port, err)
		}
	case scheme == "https":
		ret.Port = 443
	default:
		ret.Port = 80
	}
	return ret, nil
}
