package router

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"dbrouter/pkg/datastore"
)

const mb = int64(1024 * 1024)

var errConnectionRefused = errors.New("connection refused")

// callRecorder remembers which backend received each forwarded call.
type callRecorder struct {
	mu    sync.Mutex
	calls []int
}

func (r *callRecorder) record(index int) {
	r.mu.Lock()
	r.calls = append(r.calls, index)
	r.mu.Unlock()
}

func (r *callRecorder) last() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return -100
	}
	return r.calls[len(r.calls)-1]
}

type fakeResult struct{ index int }

func (r fakeResult) LastInsertId() (int64, error) { return int64(r.index), nil }
func (r fakeResult) RowsAffected() (int64, error) { return 1, nil }

// fakeHandle is a backend handle with a scripted size.
type fakeHandle struct {
	index    int
	recorder *callRecorder
	size     atomic.Int64
	probeErr atomic.Bool
	probes   atomic.Int32
	execErr  error
	closed   atomic.Bool

	// When set, SizeBytes signals entered and waits on release.
	entered chan struct{}
	release chan struct{}
}

func newFakeHandle(index int, size int64, recorder *callRecorder) *fakeHandle {
	handle := &fakeHandle{index: index, recorder: recorder}
	handle.size.Store(size)
	return handle
}

func (h *fakeHandle) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	h.recorder.record(h.index)
	if h.execErr != nil {
		return nil, h.execErr
	}
	return fakeResult{index: h.index}, nil
}

func (h *fakeHandle) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	h.recorder.record(h.index)
	return nil, fmt.Errorf("fake backend %d cannot query", h.index)
}

func (h *fakeHandle) PingContext(context.Context) error {
	h.recorder.record(h.index)
	return nil
}

func (h *fakeHandle) Dialect() datastore.Dialect { return datastore.DialectPostgres }

func (h *fakeHandle) Close() error {
	h.closed.Store(true)
	return nil
}

func (h *fakeHandle) SizeBytes(context.Context) (int64, error) {
	h.probes.Add(1)
	if h.entered != nil {
		select {
		case h.entered <- struct{}{}:
		default:
		}
		<-h.release
	}
	if h.probeErr.Load() {
		return 0, errors.New("size query failed")
	}
	return h.size.Load(), nil
}

// bareHandle forwards calls but cannot report its size or begin transactions.
type bareHandle struct {
	index    int
	recorder *callRecorder
}

func (h *bareHandle) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	h.recorder.record(h.index)
	return fakeResult{index: h.index}, nil
}

func (h *bareHandle) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errors.New("unsupported")
}

func (h *bareHandle) PingContext(context.Context) error { return nil }
func (h *bareHandle) Dialect() datastore.Dialect        { return datastore.DialectSQLite }
func (h *bareHandle) Close() error                      { return nil }

// fakeOpener hands out pre-built handles and counts open attempts.
type fakeOpener struct {
	mu      sync.Mutex
	handles map[int]datastore.Handle
	failing map[int]bool
	opens   map[int]int
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{
		handles: map[int]datastore.Handle{},
		failing: map[int]bool{},
		opens:   map[int]int{},
	}
}

func (o *fakeOpener) Open(_ context.Context, descriptor datastore.Descriptor) (datastore.Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens[descriptor.Index]++
	if o.failing[descriptor.Index] {
		return nil, errConnectionRefused
	}
	handle, ok := o.handles[descriptor.Index]
	if !ok {
		return nil, fmt.Errorf("no fake handle for backend %d", descriptor.Index)
	}
	return handle, nil
}

func (o *fakeOpener) openCount(index int) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens[index]
}

func (o *fakeOpener) setFailing(index int, failing bool) {
	o.mu.Lock()
	o.failing[index] = failing
	o.mu.Unlock()
}

// fixture builds fake backends with the given sizes.
type fixture struct {
	opener   *fakeOpener
	recorder *callRecorder
	handles  []*fakeHandle
	descs    []datastore.Descriptor
}

func newFixture(sizes ...int64) *fixture {
	f := &fixture{opener: newFakeOpener(), recorder: &callRecorder{}}
	for i, size := range sizes {
		handle := newFakeHandle(i, size, f.recorder)
		f.handles = append(f.handles, handle)
		f.opener.handles[i] = handle
		f.descs = append(f.descs, datastore.Descriptor{Index: i, URL: fmt.Sprintf("postgres://user:pw@db%d.example/app", i)})
	}
	return f
}
