package storage

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fruitsalade/mediavault/internal/logging"
)

// Registry resolves named disks ("public", "assets") to backends.
type Registry struct {
	mu    sync.RWMutex
	disks map[string]Backend
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{disks: make(map[string]Backend)}
}

// Register adds or replaces a disk. A replaced backend is closed.
func (r *Registry) Register(name string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.disks[name]; ok && old != b {
		old.Close()
	}
	r.disks[name] = b
	logging.Info("storage disk registered",
		zap.String("disk", name),
		zap.String("backend", b.Type()))
}

// Get returns the backend for a disk name.
func (r *Registry) Get(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.disks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDisk, name)
	}
	return b, nil
}

// Names returns the registered disk names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.disks))
	for n := range r.disks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Close closes all backends.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, b := range r.disks {
		if err := b.Close(); err != nil {
			logging.Warn("closing storage disk", zap.String("disk", name), zap.Error(err))
		}
	}
	return nil
}
