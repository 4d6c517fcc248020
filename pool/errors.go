package pool

import (
	"errors"
	"fmt"
)

// ErrorKind classifies connection failures.
type ErrorKind string

const (
	KindConfigNotFound        ErrorKind = "config not found"
	KindInvalidConfig         ErrorKind = "invalid config"
	KindTransportBuild        ErrorKind = "transport build"
	KindTransportConnect      ErrorKind = "transport connect"
	KindUpstreamProtocol      ErrorKind = "upstream protocol"
	KindAuth                  ErrorKind = "auth"
	KindUnexpectedContentType ErrorKind = "unexpected content type"
)

// Sentinels matched with errors.Is against any *Error of the same kind.
var (
	ErrConfigNotFound        = &Error{Kind: KindConfigNotFound}
	ErrInvalidConfig         = &Error{Kind: KindInvalidConfig}
	ErrTransportBuild        = &Error{Kind: KindTransportBuild}
	ErrTransportConnect      = &Error{Kind: KindTransportConnect}
	ErrUpstreamProtocol      = &Error{Kind: KindUpstreamProtocol}
	ErrAuth                  = &Error{Kind: KindAuth}
	ErrUnexpectedContentType = &Error{Kind: KindUnexpectedContentType}
)

// Error is a failed attempt to reach a target.
type Error struct {
	Kind   ErrorKind
	Target string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Target == "" && e.Err == nil:
		return string(e.Kind)
	case e.Err == nil:
		return fmt.Sprintf("%s: target %q", e.Kind, e.Target)
	}
	return fmt.Sprintf("%s: target %q: %v", e.Kind, e.Target, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	var candidate *Error
	if !errors.As(target, &candidate) {
		return false
	}
	return candidate.Target == "" && candidate.Err == nil && candidate.Kind == e.Kind
}

func newError(kind ErrorKind, name string, err error) *Error {
	return &Error{Kind: kind, Target: name, Err: err}
}
