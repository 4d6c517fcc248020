package policy

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/net/http/httpguts"

	"github.com/viant/mcprelay/auth"
)

// DefaultHeaders returns the Authorization header for config scoped to the caller identity.
// A nil config yields an empty header set.
func DefaultHeaders(ctx context.Context, builder *auth.Builder, config *auth.Config) (http.Header, error) {
	headers := http.Header{}
	if config == nil {
		return headers, nil
	}
	source, err := builder.Build(ctx, config, auth.IdentityFrom(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to build backend auth: %w", err)
	}
	token, err := source.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get backend token: %w", err)
	}
	headers.Set("Authorization", "Bearer "+token)
	return headers, nil
}

// MergeHeaders applies declared headers over base; declared values replace base values with the same name.
func MergeHeaders(base http.Header, declared map[string]string) (http.Header, error) {
	ret := base.Clone()
	if ret == nil {
		ret = http.Header{}
	}
	for name, value := range declared {
		if !httpguts.ValidHeaderFieldName(name) {
			return nil, fmt.Errorf("invalid header name: %q", name)
		}
		if !httpguts.ValidHeaderFieldValue(value) {
			return nil, fmt.Errorf("invalid value for header %v", name)
		}
		ret.Set(name, value)
	}
	return ret, nil
}
