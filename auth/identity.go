package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/viant/mcp-protocol/authorization"
)

type identityKey struct{}

// Identity describes the downstream caller a connection is built for.
type Identity struct {
	Subject string
	Email   string
	// Token is the caller's bearer token without the scheme prefix.
	Token string
}

// Key returns a stable key used to scope cached credentials.
func (i Identity) Key() string {
	switch {
	case i.Subject != "":
		return "sub:" + i.Subject
	case i.Email != "":
		return "email:" + i.Email
	case i.Token != "":
		sum := sha256.Sum256([]byte(i.Token))
		return "tkn:" + hex.EncodeToString(sum[:8])
	default:
		return "anonymous"
	}
}

// WithIdentity returns a context carrying identity.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFrom returns the identity stored by WithIdentity, or derives one from the
// caller token placed in the context under authorization.TokenKey.
func IdentityFrom(ctx context.Context) Identity {
	if ctx == nil {
		return Identity{}
	}
	if identity, ok := ctx.Value(identityKey{}).(Identity); ok {
		return identity
	}
	token := tokenFrom(ctx)
	if token == "" {
		return Identity{}
	}
	identity := Identity{Token: token}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		identity.Subject, _ = claims["sub"].(string)
		identity.Email, _ = claims["email"].(string)
	}
	return identity
}

func tokenFrom(ctx context.Context) string {
	switch actual := ctx.Value(authorization.TokenKey).(type) {
	case string:
		return trimBearer(actual)
	case *authorization.Token:
		if actual == nil {
			return ""
		}
		return trimBearer(actual.Token)
	}
	return ""
}

func trimBearer(s string) string {
	v := strings.TrimSpace(s)
	if strings.HasPrefix(strings.ToLower(v), "bearer ") {
		return strings.TrimSpace(v[len("bearer "):])
	}
	return v
}
