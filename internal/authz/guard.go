package authz

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Deny reasons reported in decisions.
const (
	ReasonUnauthenticated = "unauthenticated"
	ReasonForbidden       = "forbidden"
)

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed    bool      `json:"allowed"`
	Reason     string    `json:"reason,omitempty"`
	Permission string    `json:"permission"`
	Matched    string    `json:"matched,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}

// Guard wraps protected operations with a permission check. It is read-only:
// its only side effect is invoking the resolver.
//
// For :own-scoped permissions the guard grants only the capability to attempt
// the operation; the caller must additionally verify ownership of the
// specific entity. Capability first, ownership second.
type Guard struct {
	resolver *Resolver
	now      func() time.Time
}

// NewGuard constructs a Guard over the resolver.
func NewGuard(resolver *Resolver, opts ...GuardOption) (*Guard, error) {
	if resolver == nil {
		return nil, errors.New("authz: resolver is required")
	}
	g := &Guard{resolver: resolver, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// GuardOption configures Guard behavior.
type GuardOption func(*Guard)

// WithGuardClock overrides the time source (useful for tests).
func WithGuardClock(fn func() time.Time) GuardOption {
	return func(g *Guard) {
		if fn != nil {
			g.now = fn
		}
	}
}

// Check decides whether the actor holds the required permission. Resolution
// failures (store errors, timeouts) fail closed: the decision denies and the
// underlying error is returned for logging.
func (g *Guard) Check(ctx context.Context, actor Actor, permission string) (Decision, error) {
	return g.check(ctx, actor, false, permission)
}

// CheckAny decides whether the actor holds at least one of the permissions.
func (g *Guard) CheckAny(ctx context.Context, actor Actor, permissions ...string) (Decision, error) {
	return g.check(ctx, actor, true, permissions...)
}

func (g *Guard) check(ctx context.Context, actor Actor, anyOf bool, permissions ...string) (Decision, error) {
	decision := Decision{CheckedAt: g.now().UTC()}
	if len(permissions) == 0 {
		return decision, fmt.Errorf("%w: at least one permission is required", ErrInvalidInput)
	}
	decision.Permission = permissions[0]
	for _, perm := range permissions {
		if _, err := ParsePermission(perm); err != nil {
			return decision, err
		}
	}
	if !actor.Authenticated() {
		decision.Reason = ReasonUnauthenticated
		return decision, nil
	}

	perms, err := g.resolver.Resolve(ctx, actor.UserID, actor.Context)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return decision, err
		}
		// Fail closed: a resolution timeout or store failure is a deny,
		// never an implicit allow.
		decision.Reason = ReasonForbidden
		return decision, err
	}

	matched := ""
	for _, perm := range permissions {
		if perms.Has(perm) {
			matched = perm
			if perms.Superuser() {
				matched = SuperuserPermission
			}
			break
		}
		if !anyOf {
			break
		}
	}
	if matched == "" {
		decision.Reason = ReasonForbidden
		return decision, nil
	}
	decision.Allowed = true
	decision.Matched = matched
	return decision, nil
}

// RequirePermission is the direct entry point for protected operations. It
// returns nil when allowed, ErrUnauthenticated or ErrForbidden otherwise.
func (g *Guard) RequirePermission(ctx context.Context, actor Actor, permission string) error {
	decision, err := g.Check(ctx, actor, permission)
	return requireError(decision, err)
}

// RequireAnyPermission allows operations reachable by multiple roles: the
// actor needs at least one of the permissions.
func (g *Guard) RequireAnyPermission(ctx context.Context, actor Actor, permissions ...string) error {
	decision, err := g.CheckAny(ctx, actor, permissions...)
	return requireError(decision, err)
}

func requireError(decision Decision, err error) error {
	if err != nil && errors.Is(err, ErrInvalidInput) {
		return err
	}
	if decision.Allowed {
		return nil
	}
	switch decision.Reason {
	case ReasonUnauthenticated:
		return ErrUnauthenticated
	default:
		if err != nil {
			return fmt.Errorf("%w: permission resolution failed: %v", ErrForbidden, err)
		}
		return fmt.Errorf("%w: missing %s", ErrForbidden, decision.Permission)
	}
}
