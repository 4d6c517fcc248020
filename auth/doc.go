// Package auth issues bearer tokens used to authenticate against upstream
// backends on behalf of the downstream caller.
//
// A Config declares how a token is obtained (caller passthrough, static
// token or OAuth2 client credentials); a Builder turns it into an
// identity scoped Source. OAuth2 sources are cached per identity so that
// repeated connects reuse tokens until they expire.
package auth
