package router

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"dbrouter/pkg/datastore"
	"dbrouter/pkg/log"
	"dbrouter/pkg/models"
)

// Proxy is the handle application code holds. Each call is forwarded to
// whichever backend is active when the call starts. Without a router it
// passes every call through to the default backend.
type Proxy struct {
	router   *Router
	opener   datastore.Opener
	fallback *datastore.Descriptor

	openMu        sync.Mutex
	mu            sync.RWMutex
	defaultHandle datastore.Handle
}

var (
	_ datastore.Handle     = (*Proxy)(nil)
	_ datastore.Sizer      = (*Proxy)(nil)
	_ datastore.Transactor = (*Proxy)(nil)
	_ datastore.Statser    = (*Proxy)(nil)
)

// NewProxy creates a dispatch proxy. router may be nil for single backend
// deployments. defaultURL names the default backend, opened on first use
// and consulted for capabilities the active backend lacks.
func NewProxy(router *Router, opener datastore.Opener, defaultURL string) *Proxy {
	proxy := &Proxy{router: router, opener: opener}
	if defaultURL != "" {
		proxy.fallback = &datastore.Descriptor{Index: datastore.DefaultIndex, URL: defaultURL}
	}
	return proxy
}

// Router returns the router behind the proxy, or nil in pass-through mode.
func (p *Proxy) Router() *Router {
	return p.router
}

// MultiBackend reports whether calls are routed across several backends.
func (p *Proxy) MultiBackend() bool {
	return p.router != nil
}

func (p *Proxy) resolve(ctx context.Context) (datastore.Handle, error) {
	if p.router == nil {
		return p.openDefault(ctx)
	}
	return p.router.activeHandle(ctx)
}

func (p *Proxy) currentDefault() datastore.Handle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.defaultHandle
}

func (p *Proxy) openDefault(ctx context.Context) (datastore.Handle, error) {
	if handle := p.currentDefault(); handle != nil {
		return handle, nil
	}
	if p.fallback == nil {
		return nil, datastore.ErrNoBackend
	}

	p.openMu.Lock()
	defer p.openMu.Unlock()
	if handle := p.currentDefault(); handle != nil {
		return handle, nil
	}

	handle, err := p.opener.Open(ctx, *p.fallback)
	if err != nil {
		log.Error().Err(err).Str("url", p.fallback.Redacted()).Msg("Default backend connection failed")
		return nil, err
	}

	p.mu.Lock()
	p.defaultHandle = handle
	p.mu.Unlock()

	log.Info().Str("url", p.fallback.Redacted()).Msg("Default backend connected")
	return handle, nil
}

func (p *Proxy) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	handle, err := p.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return handle.ExecContext(ctx, query, args...)
}

func (p *Proxy) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	handle, err := p.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return handle.QueryContext(ctx, query, args...)
}

func (p *Proxy) PingContext(ctx context.Context) error {
	handle, err := p.resolve(ctx)
	if err != nil {
		return err
	}
	return handle.PingContext(ctx)
}

// Dialect reports the dialect of the handle calls currently reach, or an
// empty dialect when nothing is connected yet.
func (p *Proxy) Dialect() datastore.Dialect {
	var handle datastore.Handle
	if p.router != nil {
		handle = p.router.currentActiveHandle()
	} else {
		handle = p.currentDefault()
	}
	if handle == nil {
		return ""
	}
	return handle.Dialect()
}

// BeginTx starts a transaction on the active backend, or on the default
// backend when the active one cannot.
func (p *Proxy) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	handle, err := p.resolve(ctx)
	if err != nil {
		return nil, err
	}
	if transactor, ok := handle.(datastore.Transactor); ok {
		return transactor.BeginTx(ctx, opts)
	}

	fallback, err := p.capabilityFallback(ctx, handle)
	if err != nil {
		return nil, err
	}
	if transactor, ok := fallback.(datastore.Transactor); ok {
		return transactor.BeginTx(ctx, opts)
	}
	return nil, fmt.Errorf("%w: BeginTx", datastore.ErrUnsupported)
}

// SizeBytes probes the backend calls currently reach, falling back to the
// default backend when the active one cannot report its size.
func (p *Proxy) SizeBytes(ctx context.Context) (int64, error) {
	handle, err := p.resolve(ctx)
	if err != nil {
		return 0, err
	}
	if sizer, ok := handle.(datastore.Sizer); ok {
		return sizer.SizeBytes(ctx)
	}

	fallback, err := p.capabilityFallback(ctx, handle)
	if err != nil {
		return 0, err
	}
	if sizer, ok := fallback.(datastore.Sizer); ok {
		return sizer.SizeBytes(ctx)
	}
	return 0, fmt.Errorf("%w: SizeBytes", datastore.ErrUnsupported)
}

// Stats reports pool statistics of an already connected handle. It never
// connects.
func (p *Proxy) Stats() sql.DBStats {
	candidates := []datastore.Handle{p.currentDefault()}
	if p.router != nil {
		candidates = []datastore.Handle{p.router.currentActiveHandle(), p.currentDefault()}
	}
	for _, handle := range candidates {
		if statser, ok := handle.(datastore.Statser); ok {
			return statser.Stats()
		}
	}
	return sql.DBStats{}
}

// capabilityFallback returns the default handle when it differs from the
// handle that lacked a capability.
func (p *Proxy) capabilityFallback(ctx context.Context, tried datastore.Handle) (datastore.Handle, error) {
	if p.fallback == nil {
		return nil, datastore.ErrUnsupported
	}
	fallback, err := p.openDefault(ctx)
	if err != nil {
		return nil, err
	}
	if fallback == tried {
		return nil, datastore.ErrUnsupported
	}
	return fallback, nil
}

// Status reports the backends behind the proxy. In pass-through mode it
// probes the default backend if it is connected.
func (p *Proxy) Status(ctx context.Context) models.RouterStatus {
	if p.router != nil {
		return p.router.Status()
	}

	status := models.RouterStatus{ActiveIndex: 0, MultiBackend: false}
	if p.fallback == nil {
		status.Backends = []models.BackendStatus{}
		return status
	}

	handle := p.currentDefault()
	size := datastore.UnknownSize
	if handle != nil {
		size = datastore.ProbeSize(ctx, handle)
	}
	status.Backends = []models.BackendStatus{{
		Index:     0,
		URL:       p.fallback.Redacted(),
		SizeBytes: size,
		SizeHuman: log.Bytes(size),
		Active:    true,
		Available: true,
		Connected: handle != nil,
	}}
	return status
}

// Close closes the default handle. Backend handles belong to the router.
func (p *Proxy) Close() error {
	p.mu.Lock()
	handle := p.defaultHandle
	p.defaultHandle = nil
	p.mu.Unlock()

	if handle == nil {
		return nil
	}
	return handle.Close()
}
