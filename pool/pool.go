package pool

import (
	"context"
	"fmt"
	"time"

	"cdr.dev/slog"
	"github.com/hashicorp/go-multierror"

	"github.com/viant/mcprelay/bridge"
	"github.com/viant/mcprelay/store"
	"github.com/viant/mcprelay/target"
)

// Store provides the targets of a listener. Implementations return owned snapshots and
// never hold their lock once a call returns.
type Store interface {
	Get(listener, name string) (store.Entry, bool)
	Targets(listener string) []store.Entry
}

// Entry is a named upstream returned by List.
type Entry struct {
	Name     string
	Upstream *Upstream
}

// Pool caches upstream connections of one listener by target name.
type Pool struct {
	listener  string
	store     Store
	connector Connector
	cache     map[string]*Upstream
	metrics   *Metrics
	logger    slog.Logger
}

// Option customises a Pool.
type Option func(p *Pool)

// WithConnector replaces the default Dialer.
func WithConnector(connector Connector) Option {
	return func(p *Pool) { p.connector = connector }
}

// WithMetrics enables connection metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(p *Pool) { p.metrics = metrics }
}

// WithLogger sets the pool logger.
func WithLogger(logger slog.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// New creates an empty pool for listener.
func New(listener string, aStore Store, options ...Option) *Pool {
	ret := &Pool{
		listener: listener,
		store:    aStore,
		cache:    map[string]*Upstream{},
		logger:   slog.Make(),
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.connector == nil {
		ret.connector = NewDialer(WithDialerLogger(ret.logger))
	}
	return ret
}

// Listener returns the listener name.
func (p *Pool) Listener() string {
	return p.listener
}

// GetOrCreate returns the cached upstream for name, connecting it on a miss.
func (p *Pool) GetOrCreate(ctx context.Context, peer bridge.Peer, name string) (*Upstream, error) {
	if upstream, ok := p.cache[name]; ok {
		return upstream, nil
	}
	entry, ok := p.store.Get(p.listener, name)
	if !ok {
		return nil, newError(KindConfigNotFound, name, nil)
	}
	if err := p.Connect(ctx, entry.Generation, &entry.Target, peer); err != nil {
		return nil, err
	}
	upstream, ok := p.cache[name]
	if !ok {
		return nil, newError(KindConfigNotFound, name, fmt.Errorf("connection was not cached"))
	}
	return upstream, nil
}

// Remove evicts and returns the cached upstream; the caller decides whether to close it.
func (p *Pool) Remove(name string) (*Upstream, bool) {
	upstream, ok := p.cache[name]
	if !ok {
		return nil, false
	}
	delete(p.cache, name)
	p.updateCached()
	return upstream, true
}

// Cached returns the cached upstreams in no particular order.
func (p *Pool) Cached() []Entry {
	ret := make([]Entry, 0, len(p.cache))
	for name, upstream := range p.cache {
		ret = append(ret, Entry{Name: name, Upstream: upstream})
	}
	return ret
}

// List connects every target of the listener in store order and returns them.
// The first failure aborts the batch; upstreams connected before it stay cached.
func (p *Pool) List(ctx context.Context, peer bridge.Peer) ([]Entry, error) {
	snapshot := p.store.Targets(p.listener)
	for i := range snapshot {
		if err := p.Connect(ctx, snapshot[i].Generation, &snapshot[i].Target, peer); err != nil {
			return nil, err
		}
	}
	ret := make([]Entry, 0, len(snapshot))
	for _, entry := range snapshot {
		if upstream, ok := p.cache[entry.Target.Name]; ok {
			ret = append(ret, Entry{Name: entry.Target.Name, Upstream: upstream})
		}
	}
	return ret, nil
}

// Connect caches a connection for aTarget unless one already exists.
func (p *Pool) Connect(ctx, generation context.Context, aTarget *target.Target, peer bridge.Peer) error {
	if _, ok := p.cache[aTarget.Name]; ok {
		return nil
	}
	kind, _ := aTarget.Spec.Kind()
	started := time.Now()
	upstream, err := p.connector.Connect(ctx, generation, aTarget, peer)
	p.observe(kind, started, err)
	if err != nil {
		p.logger.Warn(ctx, "failed to connect upstream",
			slog.F("listener", p.listener),
			slog.F("target", aTarget.Name),
			slog.Error(err))
		return err
	}
	upstream.generation = generation
	p.cache[aTarget.Name] = upstream
	p.updateCached()
	p.logger.Debug(ctx, "connected upstream",
		slog.F("listener", p.listener),
		slog.F("target", aTarget.Name),
		slog.F("kind", kind))
	return nil
}

// Close closes and evicts every cached upstream.
func (p *Pool) Close() error {
	var errs error
	for name, upstream := range p.cache {
		if err := upstream.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to close %v: %w", name, err))
		}
		delete(p.cache, name)
	}
	p.updateCached()
	return errs
}

func (p *Pool) observe(kind target.Kind, started time.Time, err error) {
	if p.metrics == nil {
		return
	}
	status := ConnectStatusCompleted
	if err != nil {
		status = ConnectStatusFailed
	}
	p.metrics.ConnectCount.WithLabelValues(p.listener, string(kind), status).Inc()
	p.metrics.ConnectDuration.WithLabelValues(p.listener, string(kind)).Observe(time.Since(started).Seconds())
}

func (p *Pool) updateCached() {
	if p.metrics == nil {
		return
	}
	p.metrics.Cached.WithLabelValues(p.listener).Set(float64(len(p.cache)))
}
