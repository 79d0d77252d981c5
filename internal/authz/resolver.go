package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"contractdesk.org/internal/obs"
)

const defaultCacheTTL = 30 * time.Second

// Resolver computes the effective permission set for an actor in a context.
// Results are memoized per (user, context) with a bounded TTL; the service
// layer invalidates affected entries on every write, so staleness is bounded
// by the lesser of the TTL and the next write touching the user.
//
// The cache is non-authoritative: the store is the single source of truth.
type Resolver struct {
	store Store
	ttl   time.Duration
	now   func() time.Time

	mu      sync.RWMutex
	entries map[cacheKey]*cacheEntry
	// Generation counters detect invalidations that race an in-flight store
	// read: a set captured before the bump must not be published after it.
	userGen map[string]uint64
	allGen  uint64
}

type cacheKey struct {
	userID  string
	context string
}

// cacheEntry is immutable once published; readers holding a reference keep
// observing the set it was computed with, never a partial update.
type cacheEntry struct {
	perms     PermissionSet
	expiresAt time.Time
}

// ResolverOption configures Resolver behavior.
type ResolverOption func(*Resolver)

// WithCacheTTL bounds how long a cached permission set may be served.
func WithCacheTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewResolver constructs a Resolver over the given store.
func NewResolver(store Store, opts ...ResolverOption) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("authz: store is required")
	}
	r := &Resolver{
		store:   store,
		ttl:     defaultCacheTTL,
		now:     time.Now,
		entries: make(map[cacheKey]*cacheEntry),
		userGen: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve returns the effective permission set for userID in the given
// context. Scoping rule: active assignments whose context matches exactly
// apply, and global (empty-context) assignments apply in every context.
// An unknown user resolves to the empty set; a malformed context is an
// ErrInvalidInput. Any store failure (including timeouts) is returned as an
// error so callers fail closed.
func (r *Resolver) Resolve(ctx context.Context, userID, assignmentContext string) (PermissionSet, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if err := ValidateContext(assignmentContext); err != nil {
		return nil, err
	}

	key := cacheKey{userID: userID, context: assignmentContext}
	now := r.now()

	r.mu.RLock()
	entry := r.entries[key]
	allGen, userGen := r.allGen, r.userGen[userID]
	r.mu.RUnlock()
	if entry != nil && now.Before(entry.expiresAt) {
		obs.PermissionCacheLookup(true)
		return entry.perms, nil
	}
	obs.PermissionCacheLookup(false)

	names, err := r.store.UserPermissions(ctx, userID, assignmentContext)
	if err != nil {
		return nil, fmt.Errorf("resolve permissions for %s: %w", userID, err)
	}
	perms := NewPermissionSet(names...)

	// Publish only if no invalidation landed while the store read was in
	// flight. A set computed before a revocation must not outlive it; the
	// caller still gets the set it read, the next resolve re-reads the store.
	r.mu.Lock()
	if r.allGen == allGen && r.userGen[userID] == userGen {
		r.entries[key] = &cacheEntry{perms: perms, expiresAt: r.now().Add(r.ttl)}
	}
	r.mu.Unlock()

	return perms, nil
}

// InvalidateUser drops every cached context for the user. Called on writes
// to the user's assignments.
func (r *Resolver) InvalidateUser(userID string) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return
	}
	r.mu.Lock()
	r.userGen[userID]++
	for key := range r.entries {
		if key.userID == userID {
			delete(r.entries, key)
		}
	}
	r.mu.Unlock()
}

// InvalidateAll drops the whole cache. Called on role-permission rewires,
// which can affect arbitrarily many users.
func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	r.allGen++
	r.entries = make(map[cacheKey]*cacheEntry)
	r.userGen = make(map[string]uint64)
	r.mu.Unlock()
}

// ValidateContext checks an assignment context value. Empty means global.
func ValidateContext(assignmentContext string) error {
	if assignmentContext == "" {
		return nil
	}
	if strings.TrimSpace(assignmentContext) != assignmentContext || strings.ContainsAny(assignmentContext, " \t\n") {
		return fmt.Errorf("%w: malformed context %q", ErrInvalidInput, assignmentContext)
	}
	if len(assignmentContext) > 128 {
		return fmt.Errorf("%w: context exceeds 128 characters", ErrInvalidInput)
	}
	return nil
}
