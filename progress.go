package upload

import (
	"sync"

	"github.com/pkg/errors"
)

// ProgressRegistry is the process-wide mapping from an opaque
// client-supplied progress-id to the Progress counters of its upload.
//
// Uploads write to their own Progress frequently (every body chunk);
// queries against the registry itself (insert/lookup/remove) are rare
// browser polls. Per Progress.Add/Snapshot, the hot path never takes
// the registry's mutex — only structural operations do.
type ProgressRegistry struct {
	mu      sync.RWMutex
	entries map[string]*Progress
}

// NewProgressRegistry creates an empty registry. Call this once at
// process startup; the registry is the only global mutable state in
// this package.
func NewProgressRegistry() *ProgressRegistry {
	return &ProgressRegistry{entries: make(map[string]*Progress)}
}

// ErrProgressIDInUse is returned by Insert when id is already registered.
var ErrProgressIDInUse = errors.New("progress id already in use")

// Insert registers p under id. It fails if id is already present, since
// two concurrent uploads sharing a progress-id would corrupt each
// other's counters.
func (r *ProgressRegistry) Insert(id string, p *Progress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; exists {
		return ErrProgressIDInUse
	}
	r.entries[id] = p
	return nil
}

// Lookup returns the Progress registered under id, if any.
func (r *ProgressRegistry) Lookup(id string) (*Progress, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.entries[id]
	return p, ok
}

// Remove unregisters id. It is a no-op if id is not present, so it is
// always safe to call unconditionally during request teardown.
func (r *ProgressRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len reports the number of in-flight uploads currently tracked.
func (r *ProgressRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
