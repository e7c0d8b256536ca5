// Package names allocates the tag that distinguishes players sharing a
// display name. Tags are per-name, never zero, and reused deterministically:
// the lowest free tag wins.
package names

import (
	"errors"
	"sync"

	"k8s.io/utils/set"

	"github.com/pmms-project/pmms-server/internal/v1/types"
)

var (
	// ErrTagSpaceExhausted means all 65535 tags of a name are in use.
	ErrTagSpaceExhausted = errors.New("names: tag space exhausted")
	// ErrNotPresent means a release named a (name, tag) pair the registry
	// does not hold.
	ErrNotPresent = errors.New("names: full name not present")
)

type entry struct {
	// nextTagHint is where the free-tag scan starts. It trails the lowest
	// released tag so busy names do not pay a full rescan per assign.
	nextTagHint uint16
	used        set.Set[uint16]
}

// Registry is safe for concurrent use by any number of sessions.
type Registry struct {
	mu    sync.RWMutex
	names map[string]*entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]*entry)}
}

// Assign reserves the lowest free tag for name and returns the resulting
// full name. The first assign for a fresh name always yields tag 1.
func (r *Registry) Assign(name string) (types.PlayerFullName, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.names[name]
	if !ok {
		e = &entry{nextTagHint: 1, used: set.New[uint16]()}
		r.names[name] = e
	}
	if e.used.Len() == 0xffff {
		return types.PlayerFullName{}, ErrTagSpaceExhausted
	}

	tag := e.nextTagHint
	for tag == types.UnassignedTag || e.used.Has(tag) {
		tag++
	}
	e.used.Insert(tag)
	e.nextTagHint = tag + 1
	return types.PlayerFullName{Name: name, Tag: tag}, nil
}

// Release frees the tag and drops the name entry once no tags remain.
func (r *Registry) Release(fullName types.PlayerFullName) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.names[fullName.Name]
	if !ok || !e.used.Has(fullName.Tag) {
		return ErrNotPresent
	}
	e.used.Delete(fullName.Tag)
	if e.used.Len() == 0 {
		delete(r.names, fullName.Name)
		return nil
	}
	if fullName.Tag < e.nextTagHint {
		e.nextTagHint = fullName.Tag
	}
	return nil
}

// Contains reports whether the exact (name, tag) pair is reserved.
func (r *Registry) Contains(fullName types.PlayerFullName) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.names[fullName.Name]
	return ok && e.used.Has(fullName.Tag)
}

// Size returns the number of distinct names holding at least one tag.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}
