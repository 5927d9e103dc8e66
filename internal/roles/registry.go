package roles

import (
	"context"
	"fmt"
	"sync"

	"github.com/taskforge-hq/taskforge/internal/authz"
)

// Loader fetches role records from the backing store.
type Loader interface {
	LoadRoles(ctx context.Context) ([]Role, error)
}

// Registry maps role identifiers to base permission tables. The table is
// loaded once and served from memory; writes to role definitions call
// Invalidate, there is no TTL.
type Registry struct {
	loader Loader

	mu    sync.RWMutex
	roles map[authz.RoleID]Role
}

// NewRegistry constructs a registry backed by loader.
func NewRegistry(loader Loader) *Registry {
	return &Registry{loader: loader}
}

// NewStaticRegistry constructs a registry over a fixed role set, used in
// tests and for the seeded defaults.
func NewStaticRegistry(list []Role) *Registry {
	r := &Registry{}
	r.install(list)
	return r
}

func (r *Registry) install(list []Role) {
	roles := make(map[authz.RoleID]Role, len(list))
	for _, role := range list {
		roles[role.ID] = role
	}
	r.mu.Lock()
	r.roles = roles
	r.mu.Unlock()
}

// Load populates the registry from the backing store. Safe to call
// concurrently; the last load wins.
func (r *Registry) Load(ctx context.Context) error {
	if r.loader == nil {
		return fmt.Errorf("roles: registry has no loader")
	}
	list, err := r.loader.LoadRoles(ctx)
	if err != nil {
		return fmt.Errorf("roles: load: %w", err)
	}
	r.install(list)
	return nil
}

// Invalidate discards the cached table and reloads it. Role changes call
// this synchronously so readers never observe a stale grant after the
// write returns.
func (r *Registry) Invalidate(ctx context.Context) error {
	return r.Load(ctx)
}

// Lookup returns the base grant for (role, resource, action), or false
// when the role has no grant for the pair. Absence is default-deny, not
// an error.
func (r *Registry) Lookup(role authz.RoleID, resource authz.Resource, action authz.Action) (ScopeSpec, bool) {
	r.mu.RLock()
	rec, ok := r.roles[role]
	r.mu.RUnlock()
	if !ok {
		return ScopeSpec{}, false
	}
	spec, ok := rec.BasePermissions[PermKey{Resource: resource, Action: action}]
	return spec, ok
}

// List returns all loaded roles.
func (r *Registry) List() []Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	return out
}
