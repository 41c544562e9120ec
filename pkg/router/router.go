package router

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"

	"dbrouter/pkg/config"
	"dbrouter/pkg/datastore"
	"dbrouter/pkg/log"
	"dbrouter/pkg/metrics"
	"dbrouter/pkg/models"
)

const (
	triggerManual   = "manual"
	triggerCapacity = "capacity"
)

// Router holds every known backend and which one is active. It is built
// once at startup and shared by the monitor and the dispatch proxy.
type Router struct {
	backends   []*backendState
	opener     datastore.Opener
	thresholds config.Thresholds
	persistEnv bool

	// active changes only inside switchTo.
	active atomic.Int64
	// switching keeps two failover evaluations from running at once.
	switching atomic.Bool
}

// Option configures a Router.
type Option func(*Router)

// WithEnvPersistence mirrors the active index into ACTIVE_DB_INDEX on every switch.
func WithEnvPersistence() Option {
	return func(r *Router) {
		r.persistEnv = true
	}
}

// New creates a router over descriptors. An out of range activeIndex falls back to 0.
func New(descriptors []datastore.Descriptor, opener datastore.Opener, thresholds config.Thresholds, activeIndex int, opts ...Option) (*Router, error) {
	if len(descriptors) == 0 {
		return nil, ErrNoBackends
	}

	backends := make([]*backendState, len(descriptors))
	for i, descriptor := range descriptors {
		descriptor.Index = i
		backends[i] = newBackendState(descriptor)
	}

	if activeIndex < 0 || activeIndex >= len(backends) {
		log.Warn().
			Int("active_index", activeIndex).
			Int("backend_count", len(backends)).
			Msg("Configured active backend does not exist, using backend 0")
		activeIndex = 0
	}

	r := &Router{
		backends:   backends,
		opener:     opener,
		thresholds: thresholds,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.active.Store(int64(activeIndex))

	metrics.ActiveBackend.Set(float64(activeIndex))
	for _, backend := range backends {
		metrics.ObserveBackend(backend.descriptor.Index, datastore.UnknownSize, true)
	}

	log.Info().
		Int("backend_count", len(backends)).
		Int("active_index", activeIndex).
		Str("limit", log.Bytes(thresholds.LimitBytes)).
		Str("warn", log.Bytes(thresholds.WarnBytes)).
		Msg("Storage router initialized")

	return r, nil
}

// ActiveIndex returns the index currently receiving operations.
func (r *Router) ActiveIndex() int {
	return int(r.active.Load())
}

// Len returns the number of configured backends.
func (r *Router) Len() int {
	return len(r.backends)
}

// Thresholds returns the capacity limits the router enforces.
func (r *Router) Thresholds() config.Thresholds {
	return r.thresholds
}

// SwitchActive makes newIndex the active backend, opening it first if
// needed. On failure the active index is left unchanged.
func (r *Router) SwitchActive(ctx context.Context, newIndex int) (datastore.Handle, error) {
	return r.switchTo(ctx, newIndex, triggerManual)
}

func (r *Router) switchTo(ctx context.Context, newIndex int, trigger string) (datastore.Handle, error) {
	if newIndex < 0 || newIndex >= len(r.backends) {
		return nil, fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, newIndex, len(r.backends))
	}

	target := r.backends[newIndex]
	handle, err := r.ensureOpen(ctx, target)
	if err != nil {
		log.Error().Err(err).Int("to_index", newIndex).Str("trigger", trigger).Msg("Backend switch aborted")
		return nil, err
	}
	target.setAvailable(true)

	// The handle is open before the index becomes visible to lookups.
	previous := int(r.active.Swap(int64(newIndex)))

	event := log.Info().
		Int("from_index", previous).
		Int("to_index", newIndex).
		Str("from_size", log.Bytes(r.backends[previous].size())).
		Str("to_size", log.Bytes(target.size())).
		Str("trigger", trigger)
	if previous == newIndex {
		event.Msg("Backend already active")
	} else {
		event.Msg("Active backend switched")
		metrics.SwitchesTotal.WithLabelValues(trigger).Inc()
	}
	metrics.ActiveBackend.Set(float64(newIndex))

	if r.persistEnv {
		if err := os.Setenv(config.KeyActiveIndex, strconv.Itoa(newIndex)); err != nil {
			log.Warn().Err(err).Msg("Failed to export active backend index")
		}
	}

	return handle, nil
}

// activeHandle resolves the active entry once and opens it if needed.
func (r *Router) activeHandle(ctx context.Context) (datastore.Handle, error) {
	return r.ensureOpen(ctx, r.backends[r.active.Load()])
}

// currentActiveHandle returns the active handle without opening it.
func (r *Router) currentActiveHandle() datastore.Handle {
	return r.backends[r.active.Load()].currentHandle()
}

func (r *Router) ensureOpen(ctx context.Context, backend *backendState) (datastore.Handle, error) {
	if handle := backend.currentHandle(); handle != nil {
		return handle, nil
	}

	backend.openMu.Lock()
	defer backend.openMu.Unlock()

	if handle := backend.currentHandle(); handle != nil {
		return handle, nil
	}

	index := backend.descriptor.Index
	handle, err := r.opener.Open(ctx, backend.descriptor)
	if err != nil {
		backend.setAvailable(false)
		metrics.ObserveBackend(index, backend.size(), false)

		var connectErr *datastore.ConnectError
		if !errors.As(err, &connectErr) {
			err = &datastore.ConnectError{Index: index, Err: err}
		}
		log.Warn().Err(err).Int("index", index).Str("url", backend.descriptor.Redacted()).Msg("Backend connection failed")
		return nil, err
	}

	backend.setHandle(handle)
	log.Info().Int("index", index).Str("url", backend.descriptor.Redacted()).Msg("Backend connected")
	return handle, nil
}

// probe refreshes one backend's size. A failed probe marks it unavailable
// and keeps the last known size.
func (r *Router) probe(ctx context.Context, backend *backendState, handle datastore.Handle) int64 {
	index := backend.descriptor.Index
	size := datastore.ProbeSize(ctx, handle)
	if size == datastore.UnknownSize {
		backend.setAvailable(false)
		metrics.ObserveBackend(index, size, false)
		log.Warn().Int("index", index).Msg("Backend size probe failed, marking unavailable")
		return size
	}

	backend.setSize(size)
	metrics.ObserveBackend(index, size, true)
	log.Debug().Int("index", index).Str("size", log.Bytes(size)).Msg("Backend size probed")
	return size
}

// refreshOpened re-probes every available backend that is already
// connected. Unavailable backends wait for Retry or a manual switch.
func (r *Router) refreshOpened(ctx context.Context) {
	for _, backend := range r.backends {
		handle, _, available := backend.snapshot()
		if handle == nil || !available {
			continue
		}
		r.probe(ctx, backend, handle)
	}
}

// populateAll opens and probes every available backend.
func (r *Router) populateAll(ctx context.Context) {
	for _, backend := range r.backends {
		if !backend.isAvailable() {
			continue
		}
		handle, err := r.ensureOpen(ctx, backend)
		if err != nil {
			continue
		}
		r.probe(ctx, backend, handle)
	}
}

// candidateSize reports the size used to judge backend index as a
// failover target, connecting and probing it first if it was never opened.
func (r *Router) candidateSize(ctx context.Context, index int) (int64, bool) {
	backend := r.backends[index]
	if !backend.isAvailable() {
		return datastore.UnknownSize, false
	}

	if backend.currentHandle() == nil {
		handle, err := r.ensureOpen(ctx, backend)
		if err != nil {
			return datastore.UnknownSize, false
		}
		if r.probe(ctx, backend, handle) == datastore.UnknownSize {
			return datastore.UnknownSize, false
		}
	}

	return backend.size(), true
}

// Retry clears a backend's unavailable flag, reconnecting and probing it.
func (r *Router) Retry(ctx context.Context, index int) error {
	if index < 0 || index >= len(r.backends) {
		return fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, index, len(r.backends))
	}

	backend := r.backends[index]
	backend.setAvailable(true)

	handle, err := r.ensureOpen(ctx, backend)
	if err != nil {
		return err
	}
	if r.probe(ctx, backend, handle) == datastore.UnknownSize {
		return fmt.Errorf("%w: backend %d", ErrProbeFailed, index)
	}

	log.Info().Int("index", index).Str("size", log.Bytes(backend.size())).Msg("Backend retried")
	return nil
}

// Status reports every backend for operators.
func (r *Router) Status() models.RouterStatus {
	active := r.ActiveIndex()
	status := models.RouterStatus{
		ActiveIndex:  active,
		MultiBackend: true,
		LimitBytes:   r.thresholds.LimitBytes,
		WarnBytes:    r.thresholds.WarnBytes,
		Backends:     make([]models.BackendStatus, 0, len(r.backends)),
	}

	for i, backend := range r.backends {
		handle, size, available := backend.snapshot()
		status.Backends = append(status.Backends, models.BackendStatus{
			Index:     i,
			URL:       backend.descriptor.Redacted(),
			SizeBytes: size,
			SizeHuman: log.Bytes(size),
			Active:    i == active,
			Available: available,
			Connected: handle != nil,
		})
	}
	return status
}

// Close closes every open backend handle.
func (r *Router) Close() error {
	var errs []error
	for _, backend := range r.backends {
		handle := backend.takeHandle()
		if handle == nil {
			continue
		}
		if err := handle.Close(); err != nil {
			errs = append(errs, fmt.Errorf("backend %d: %w", backend.descriptor.Index, err))
		}
	}
	return errors.Join(errs...)
}
