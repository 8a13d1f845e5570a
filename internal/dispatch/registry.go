package dispatch

import (
	"sort"
	"strings"
	"sync"

	"github.com/vaultfs/vaultfs/internal/hostfs"
)

type registration struct {
	prefix  string
	backend hostfs.Backend
}

// Registry holds the ordered set of (prefix, backend) mounts the dispatcher
// routes across. Lookups always resolve to the longest registered prefix
// that contains the requested virtual path (spec.md §4.4).
type Registry struct {
	mu      sync.RWMutex
	entries []registration
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register mounts backend at prefix, calling its Init first. prefix must be
// an absolute, slash-separated path; "/" is the catch-all root mount.
func (r *Registry) Register(prefix string, backend hostfs.Backend) error {
	prefix = normalizePrefix(prefix)
	if err := backend.Init(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.prefix == prefix {
			return hostfs.New(hostfs.KindExists, "Register", prefix, nil)
		}
	}
	r.entries = append(r.entries, registration{prefix: prefix, backend: backend})
	sort.Slice(r.entries, func(i, j int) bool {
		return len(r.entries[i].prefix) > len(r.entries[j].prefix)
	})
	return nil
}

func normalizePrefix(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// Resolve finds the backend mounted at the longest prefix containing
// virtual, and returns that backend together with virtual's path relative
// to the mount (still slash-separated, always starting with "/").
func (r *Registry) Resolve(virtual string) (hostfs.Backend, string, error) {
	backend, rel, _, err := r.ResolveWithPrefix(virtual)
	return backend, rel, err
}

// ResolveWithPrefix is Resolve plus the matched mount prefix, needed by
// callers (the rename path) that must later rebase a second path onto this
// same mount rather than its own natural match.
func (r *Registry) ResolveWithPrefix(virtual string) (hostfs.Backend, string, string, error) {
	virtual = normalizePrefix(virtual)
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.prefix == "/" {
			return e.backend, virtual, e.prefix, nil
		}
		if virtual == e.prefix {
			return e.backend, "/", e.prefix, nil
		}
		if strings.HasPrefix(virtual, e.prefix+"/") {
			return e.backend, strings.TrimPrefix(virtual, e.prefix), e.prefix, nil
		}
	}
	return nil, "", "", hostfs.New(hostfs.KindNoBackend, "Resolve", virtual, nil)
}

// RebaseOnPrefix strips prefix from virtual, the way ResolveWithPrefix would
// for a mount registered at prefix, regardless of which mount virtual would
// naturally resolve to. Used to hand a rename's destination path to the
// source backend's own Rename, rather than rejecting cross-mount renames at
// the dispatcher (spec.md §4.4, §9).
func RebaseOnPrefix(prefix, virtual string) string {
	prefix = normalizePrefix(prefix)
	virtual = normalizePrefix(virtual)
	if prefix == "/" {
		return virtual
	}
	if virtual == prefix {
		return "/"
	}
	if strings.HasPrefix(virtual, prefix+"/") {
		return strings.TrimPrefix(virtual, prefix)
	}
	return virtual
}

// Prefixes returns the registered mount points, longest first.
func (r *Registry) Prefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.prefix
	}
	return out
}
