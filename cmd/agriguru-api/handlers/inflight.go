package handlers

import (
	"context"
	"sync"
)

// Inflight tracks running queries by caller-supplied ID so a client can
// stop one from another connection.
type Inflight struct {
	mu      sync.Mutex
	entries map[string]*inflightEntry
}

type inflightEntry struct {
	cancel context.CancelFunc
}

// NewInflight creates an empty registry.
func NewInflight() *Inflight {
	return &Inflight{entries: make(map[string]*inflightEntry)}
}

// Start derives a cancellable context for id. The returned func must be
// called when the request ends. An empty id is not registered.
func (f *Inflight) Start(ctx context.Context, id string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	if id == "" {
		return ctx, cancel
	}
	entry := &inflightEntry{cancel: cancel}
	f.mu.Lock()
	if prev, ok := f.entries[id]; ok {
		prev.cancel()
	}
	f.entries[id] = entry
	f.mu.Unlock()

	return ctx, func() {
		f.mu.Lock()
		// A newer request may have taken the id.
		if f.entries[id] == entry {
			delete(f.entries, id)
		}
		f.mu.Unlock()
		cancel()
	}
}

// Cancel stops the request registered under id.
func (f *Inflight) Cancel(id string) bool {
	f.mu.Lock()
	entry, ok := f.entries[id]
	delete(f.entries, id)
	f.mu.Unlock()
	if ok {
		entry.cancel()
	}
	return ok
}
