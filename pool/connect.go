package pool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"cdr.dev/slog"
	"github.com/viant/afs"
	"github.com/viant/jsonrpc/transport"

	"github.com/viant/mcprelay/auth"
	"github.com/viant/mcprelay/bridge"
	"github.com/viant/mcprelay/openapi"
	"github.com/viant/mcprelay/policy"
	"github.com/viant/mcprelay/process"
	"github.com/viant/mcprelay/session"
	"github.com/viant/mcprelay/stream"
	"github.com/viant/mcprelay/target"
)

// Connector builds an upstream connection for a target. The generation context bounds
// the lifetime of any session the connection starts.
type Connector interface {
	Connect(ctx, generation context.Context, aTarget *target.Target, peer bridge.Peer) (*Upstream, error)
}

// Dialer is the default Connector dispatching on the target transport kind.
type Dialer struct {
	auth           *auth.Builder
	fs             afs.Service
	logger         slog.Logger
	retry          time.Duration
	sessionOptions []session.Option
}

// DialerOption customises a Dialer.
type DialerOption func(d *Dialer)

// WithAuthBuilder sets the backend token source builder.
func WithAuthBuilder(builder *auth.Builder) DialerOption {
	return func(d *Dialer) { d.auth = builder }
}

// WithFileSystem sets the service used to fetch OpenAPI documents.
func WithFileSystem(fs afs.Service) DialerOption {
	return func(d *Dialer) { d.fs = fs }
}

// WithDialerLogger sets the dialer logger.
func WithDialerLogger(logger slog.Logger) DialerOption {
	return func(d *Dialer) { d.logger = logger }
}

// WithRetryInterval sets the fixed stream reconnect interval.
func WithRetryInterval(interval time.Duration) DialerOption {
	return func(d *Dialer) { d.retry = interval }
}

// WithSessionOptions sets options applied to every started session.
func WithSessionOptions(options ...session.Option) DialerOption {
	return func(d *Dialer) { d.sessionOptions = options }
}

// NewDialer creates a Dialer.
func NewDialer(options ...DialerOption) *Dialer {
	ret := &Dialer{
		fs:     afs.New(),
		logger: slog.Make(),
		retry:  stream.DefaultRetryInterval,
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.auth == nil {
		ret.auth = auth.NewBuilder(auth.WithLogger(ret.logger.Named("auth")))
	}
	return ret
}

// Connect builds the connection for aTarget.
func (d *Dialer) Connect(ctx, generation context.Context, aTarget *target.Target, peer bridge.Peer) (*Upstream, error) {
	kind, err := aTarget.Spec.Kind()
	if err != nil {
		return nil, newError(KindInvalidConfig, aTarget.Name, err)
	}
	ret := &Upstream{Name: aTarget.Name, Filters: aTarget.Filters.Clone()}
	switch kind {
	case target.KindSSE:
		err = d.connectSSE(ctx, generation, aTarget, peer, ret)
	case target.KindStdio:
		err = d.connectStdio(generation, aTarget, peer, ret)
	case target.KindOpenAPI:
		ret.Rest, err = d.connectOpenAPI(ctx, aTarget)
	}
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (d *Dialer) connectSSE(ctx, generation context.Context, aTarget *target.Target, peer bridge.Peer, upstream *Upstream) error {
	spec := aTarget.Spec.SSE
	tlsPolicy := policy.TLS(spec.Port, spec.TLS)
	URL := fmt.Sprintf("%s://%s:%d%s", tlsPolicy.Scheme, spec.Host, spec.Port, spec.EffectivePath())
	if _, err := url.Parse(URL); err != nil {
		return newError(KindTransportBuild, aTarget.Name, err)
	}
	httpClient, err := d.httpClient(ctx, aTarget.Name, tlsPolicy, spec.Auth, spec.Headers)
	if err != nil {
		return err
	}
	logger := d.logger.With(slog.F("target", aTarget.Name))
	lifetime, cancel := context.WithCancel(generation)
	aTransport := stream.NewTransport(stream.NewClient(URL, httpClient),
		stream.WithHandler(bridge.New(peer, bridge.WithLogger(logger.Named("bridge")))),
		stream.WithRetry(d.retry, stream.DefaultMaxRetries),
		stream.WithLogger(logger.Named("stream")))
	if err = aTransport.Start(lifetime); err != nil {
		cancel()
		var contentTypeErr *stream.UnexpectedContentTypeError
		if errors.As(err, &contentTypeErr) {
			return newError(KindUnexpectedContentType, aTarget.Name, err)
		}
		return newError(KindTransportConnect, aTarget.Name, err)
	}
	return d.serve(lifetime, cancel, aTarget.Name, aTransport, upstream)
}

func (d *Dialer) connectStdio(generation context.Context, aTarget *target.Target, peer bridge.Peer, upstream *Upstream) error {
	spec := aTarget.Spec.Stdio
	logger := d.logger.With(slog.F("target", aTarget.Name))
	lifetime, cancel := context.WithCancel(generation)
	aTransport, err := process.Start(lifetime, spec.Command, spec.Args,
		process.WithEnv(spec.Env),
		process.WithHandler(bridge.New(peer, bridge.WithLogger(logger.Named("bridge")))),
		process.WithLogger(logger.Named("process")))
	if err != nil {
		cancel()
		return newError(KindTransportConnect, aTarget.Name, err)
	}
	logger.Debug(generation, "started stdio target", slog.F("command", spec.Command), slog.F("pid", aTransport.Pid()))
	return d.serve(lifetime, cancel, aTarget.Name, aTransport, upstream)
}

func (d *Dialer) serve(lifetime context.Context, cancel context.CancelFunc, name string, aTransport transport.Transport, upstream *Upstream) error {
	options := append([]session.Option{session.WithLogger(d.logger.Named("session").With(slog.F("target", name)))}, d.sessionOptions...)
	aSession, err := session.Serve(lifetime, aTransport, options...)
	if err != nil {
		cancel()
		if errors.Is(err, process.ErrExited) {
			return newError(KindTransportConnect, name, err)
		}
		return newError(KindUpstreamProtocol, name, err)
	}
	upstream.Session = aSession
	upstream.cancel = cancel
	return nil
}

func (d *Dialer) connectOpenAPI(ctx context.Context, aTarget *target.Target) (*openapi.Handler, error) {
	spec := aTarget.Spec.OpenAPI
	if spec.Schema == nil {
		return nil, newError(KindInvalidConfig, aTarget.Name, fmt.Errorf("openapi target is missing a schema source"))
	}
	doc, err := openapi.Load(ctx, d.fs, spec.Schema)
	if err != nil {
		return nil, newError(KindTransportConnect, aTarget.Name, err)
	}
	tools, err := openapi.ParseTools(doc)
	if err != nil {
		return nil, newError(KindTransportConnect, aTarget.Name, err)
	}
	info, err := openapi.ServerInfoFrom(doc)
	if err != nil {
		return nil, newError(KindTransportConnect, aTarget.Name, err)
	}
	host, port := spec.Host, spec.Port
	if info.Scheme != nil {
		host, port = *info.Host, info.Port
	}
	tlsPolicy := policy.TLS(port, spec.TLS)
	httpClient, err := d.httpClient(ctx, aTarget.Name, tlsPolicy, spec.Auth, spec.Headers)
	if err != nil {
		return nil, err
	}
	return &openapi.Handler{
		Host:   host,
		Scheme: tlsPolicy.Scheme,
		Prefix: info.Prefix,
		Port:   port,
		Client: httpClient,
		Tools:  tools,
	}, nil
}

// httpClient applies auth headers first and the target headers over them.
func (d *Dialer) httpClient(ctx context.Context, name string, tlsPolicy policy.Policy, authConfig *auth.Config, declared map[string]string) (*http.Client, error) {
	headers, err := policy.DefaultHeaders(ctx, d.auth, authConfig)
	if err != nil {
		return nil, newError(KindAuth, name, err)
	}
	if headers, err = policy.MergeHeaders(headers, declared); err != nil {
		return nil, newError(KindTransportBuild, name, err)
	}
	return policy.NewClient(tlsPolicy, headers), nil
}
