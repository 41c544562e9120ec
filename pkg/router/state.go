package router

import (
	"sync"

	"dbrouter/pkg/datastore"
)

// backendState is the mutable record kept for one descriptor.
type backendState struct {
	descriptor datastore.Descriptor

	// openMu serializes connection attempts so a handle is opened once.
	openMu sync.Mutex

	mu        sync.RWMutex
	handle    datastore.Handle
	sizeBytes int64
	available bool
}

func newBackendState(descriptor datastore.Descriptor) *backendState {
	return &backendState{
		descriptor: descriptor,
		sizeBytes:  datastore.UnknownSize,
		available:  true,
	}
}

func (b *backendState) currentHandle() datastore.Handle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.handle
}

func (b *backendState) size() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sizeBytes
}

func (b *backendState) isAvailable() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.available
}

func (b *backendState) snapshot() (datastore.Handle, int64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.handle, b.sizeBytes, b.available
}

func (b *backendState) setHandle(handle datastore.Handle) {
	b.mu.Lock()
	b.handle = handle
	b.mu.Unlock()
}

func (b *backendState) setSize(size int64) {
	b.mu.Lock()
	b.sizeBytes = size
	b.available = true
	b.mu.Unlock()
}

func (b *backendState) setAvailable(available bool) {
	b.mu.Lock()
	b.available = available
	b.mu.Unlock()
}

// takeHandle detaches the handle for closing.
func (b *backendState) takeHandle() datastore.Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	handle := b.handle
	b.handle = nil
	return handle
}
