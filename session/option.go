package session

import (
	"cdr.dev/slog"
	"github.com/viant/mcp-protocol/schema"
)

// Option customises a Session.
type Option func(s *Session)

// WithClientInfo sets the implementation announced during initialize.
func WithClientInfo(name, version string) Option {
	return func(s *Session) { s.info = *schema.NewImplementation(name, version) }
}

// WithCapabilities overrides the advertised client capabilities.
func WithCapabilities(capabilities *schema.ClientCapabilities) Option {
	return func(s *Session) { s.capabilities = capabilities }
}

// WithProtocolVersion overrides the requested protocol version.
func WithProtocolVersion(version string) Option {
	return func(s *Session) { s.protocolVersion = version }
}

// WithLogger sets the session logger.
func WithLogger(logger slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}
