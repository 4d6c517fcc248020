package mcprelay

import (
	"context"
	"fmt"
	"sync"

	"cdr.dev/slog"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/viant/afs"
	"github.com/viant/mcp-protocol/schema"

	"github.com/viant/mcprelay/auth"
	"github.com/viant/mcprelay/bridge"
	"github.com/viant/mcprelay/pool"
	"github.com/viant/mcprelay/store"
)

// Tool is an upstream tool together with the target exposing it.
type Tool struct {
	Target string      `json:"target"`
	Tool   schema.Tool `json:"tool"`
}

type listenerPool struct {
	mux  sync.Mutex
	pool *pool.Pool
}

// Relay owns the configuration store and one pool per listener. Pool access is
// serialized per listener.
type Relay struct {
	options  *Options
	store    *store.Memory
	ownStore bool
	dialer   *pool.Dialer
	metrics  *pool.Metrics
	registry *prometheus.Registry
	logger   slog.Logger

	mux   sync.Mutex
	pools map[string]*listenerPool

	cancel context.CancelFunc
	done   chan struct{}
}

// Option customises a Relay.
type Option func(r *Relay)

// WithLogger sets the relay logger.
func WithLogger(logger slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

// WithStore uses a pre-populated store instead of loading options.Config.
func WithStore(aStore *store.Memory) Option {
	return func(r *Relay) { r.store = aStore }
}

// New creates a relay, loading the store from options.Config unless one was supplied.
func New(ctx context.Context, options *Options, opts ...Option) (*Relay, error) {
	options.Init()
	ret := &Relay{
		options:  options,
		registry: prometheus.NewRegistry(),
		logger:   slog.Make(),
		pools:    map[string]*listenerPool{},
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ret)
	}
	fs := afs.New()
	if ret.store == nil {
		ret.store = store.NewMemory()
		ret.ownStore = true
		if err := ret.store.Load(ctx, fs, options.Config); err != nil {
			return nil, err
		}
	}
	ret.metrics = pool.NewMetrics(ret.registry)
	ret.dialer = pool.NewDialer(
		pool.WithFileSystem(fs),
		pool.WithDialerLogger(ret.logger.Named("dialer")),
		pool.WithAuthBuilder(auth.NewBuilder(auth.WithLogger(ret.logger.Named("auth")))),
		pool.WithSessionOptions(options.SessionOptions()...))

	changes, unsubscribe := ret.store.Subscribe(64)
	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ret.cancel = cancel
	go ret.watch(watchCtx, changes, unsubscribe)
	return ret, nil
}

// Registry returns the registry holding the pool metrics.
func (r *Relay) Registry() *prometheus.Registry {
	return r.registry
}

// Store returns the configuration store.
func (r *Relay) Store() *store.Memory {
	return r.store
}

func (r *Relay) listener(name string) *listenerPool {
	r.mux.Lock()
	defer r.mux.Unlock()
	ret, ok := r.pools[name]
	if !ok {
		ret = &listenerPool{pool: pool.New(name, r.store,
			pool.WithConnector(r.dialer),
			pool.WithMetrics(r.metrics),
			pool.WithLogger(r.logger.Named("pool")))}
		r.pools[name] = ret
	}
	return ret
}

// Tools connects every target of listener and lists their allowed tools.
func (r *Relay) Tools(ctx context.Context, listener string, peer bridge.Peer) ([]Tool, error) {
	l := r.listener(listener)
	l.mux.Lock()
	defer l.mux.Unlock()
	r.reconcile(ctx, listener, l)
	entries, err := l.pool.List(ctx, peer)
	if err != nil {
		return nil, err
	}
	var ret []Tool
	for _, entry := range entries {
		tools, err := entry.Upstream.ListTools(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list tools of %v: %w", entry.Name, err)
		}
		for _, tool := range tools {
			ret = append(ret, Tool{Target: entry.Name, Tool: tool})
		}
	}
	return ret, nil
}

// Call invokes a tool on the named target of listener.
func (r *Relay) Call(ctx context.Context, listener string, peer bridge.Peer, targetName string, params *schema.CallToolRequestParams) (*schema.CallToolResult, error) {
	l := r.listener(listener)
	l.mux.Lock()
	r.reconcile(ctx, listener, l)
	upstream, err := l.pool.GetOrCreate(ctx, peer, targetName)
	l.mux.Unlock()
	if err != nil {
		return nil, err
	}
	return upstream.CallTool(ctx, params)
}

// watch evicts and closes upstreams whose target was updated or removed.
func (r *Relay) watch(ctx context.Context, changes <-chan store.Change, unsubscribe func()) {
	defer close(r.done)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			if change.Type == store.ChangeAdded {
				continue
			}
			r.evict(ctx, change)
		}
	}
}

func (r *Relay) evict(ctx context.Context, change store.Change) {
	r.mux.Lock()
	l, ok := r.pools[change.Listener]
	r.mux.Unlock()
	if !ok {
		return
	}
	l.mux.Lock()
	upstream, ok := l.pool.Remove(change.Name)
	l.mux.Unlock()
	if !ok {
		return
	}
	r.closeEvicted(ctx, change.Listener, change.Name, upstream, string(change.Type))
}

// reconcile evicts upstreams whose generation ended without the watcher seeing the
// change; l.mux must be held.
func (r *Relay) reconcile(ctx context.Context, listener string, l *listenerPool) {
	for _, entry := range l.pool.Cached() {
		if !entry.Upstream.Stale() {
			continue
		}
		if upstream, ok := l.pool.Remove(entry.Name); ok {
			r.closeEvicted(ctx, listener, entry.Name, upstream, "stale")
		}
	}
}

func (r *Relay) closeEvicted(ctx context.Context, listener, name string, upstream *pool.Upstream, reason string) {
	if err := upstream.Close(); err != nil {
		r.logger.Warn(ctx, "failed to close evicted upstream",
			slog.F("listener", listener),
			slog.F("target", name),
			slog.Error(err))
	}
	r.logger.Debug(ctx, "evicted upstream",
		slog.F("listener", listener),
		slog.F("target", name),
		slog.F("reason", reason))
}

// Close stops watching the store and closes every pool. A store loaded by New is closed too.
func (r *Relay) Close() error {
	r.cancel()
	<-r.done
	r.mux.Lock()
	defer r.mux.Unlock()
	var errs error
	for name, l := range r.pools {
		l.mux.Lock()
		if err := l.pool.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to close listener %v: %w", name, err))
		}
		l.mux.Unlock()
	}
	if r.ownStore {
		r.store.Close()
	}
	return errs
}
