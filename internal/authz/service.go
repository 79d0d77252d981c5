package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Service provides validated role/permission/assignment operations over a
// Store. Every write invalidates the affected resolver cache entries, which
// is what bounds the staleness window of cached permission sets.
type Service struct {
	store    Store
	resolver *Resolver
}

// NewService constructs the Service. The resolver may be nil in contexts
// that never resolve (one-off admin tooling).
func NewService(store Store, resolver *Resolver) (*Service, error) {
	if store == nil {
		return nil, errors.New("authz: store is required")
	}
	return &Service{store: store, resolver: resolver}, nil
}

// EnsureBuiltins makes sure the builtin permission catalog exists.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	return s.store.EnsurePermissions(ctx, BuiltinPermissions)
}

func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return s.store.CreateRole(ctx, name, strings.TrimSpace(description))
}

func (s *Service) GetRole(ctx context.Context, roleID string) (Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return Role{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.GetRole(ctx, roleID)
}

func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// UpdateRole changes the mutable fields only; name and id are identity.
func (s *Service) UpdateRole(ctx context.Context, roleID string, upd RoleUpdate) (Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return Role{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		upd.Description = &desc
	}
	return s.store.UpdateRole(ctx, roleID, upd)
}

func (s *Service) ListPermissions(ctx context.Context) ([]PermissionRecord, error) {
	return s.store.ListPermissions(ctx)
}

// SetRolePermissions replaces the role's permission set. Permission names
// must be canonical triples. The whole resolver cache is dropped since a
// role rewire can affect arbitrarily many users.
func (s *Service) SetRolePermissions(ctx context.Context, roleID string, names []string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	deduped := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, err := ParsePermission(name); err != nil {
			return err
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		deduped = append(deduped, name)
	}
	if err := s.store.SetRolePermissions(ctx, roleID, deduped); err != nil {
		return err
	}
	if s.resolver != nil {
		s.resolver.InvalidateAll()
	}
	return nil
}

func (s *Service) RolePermissions(ctx context.Context, roleID string) ([]PermissionRecord, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.RolePermissions(ctx, roleID)
}

// Assign activates a role for a user in a context ("" = global).
func (s *Service) Assign(ctx context.Context, userID, roleID, assignmentContext, assignedBy string) (Assignment, error) {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return Assignment{}, fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	if err := ValidateContext(assignmentContext); err != nil {
		return Assignment{}, err
	}
	assignment, err := s.store.CreateAssignment(ctx, Assignment{
		UserID:     userID,
		RoleID:     roleID,
		Context:    assignmentContext,
		IsActive:   true,
		AssignedBy: strings.TrimSpace(assignedBy),
	})
	if err != nil {
		return Assignment{}, err
	}
	if s.resolver != nil {
		s.resolver.InvalidateUser(userID)
	}
	return assignment, nil
}

// Deactivate soft-disables an assignment, preserving the audit trail.
func (s *Service) Deactivate(ctx context.Context, userID, roleID, assignmentContext string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	if err := ValidateContext(assignmentContext); err != nil {
		return err
	}
	if err := s.store.DeactivateAssignment(ctx, userID, roleID, assignmentContext); err != nil {
		return err
	}
	if s.resolver != nil {
		s.resolver.InvalidateUser(userID)
	}
	return nil
}

// UserPermissions reads the user's effective permission names straight from
// the store, bypassing the resolver cache. Admin inspection wants the
// current truth, not a snapshot.
func (s *Service) UserPermissions(ctx context.Context, userID, assignmentContext string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if err := ValidateContext(assignmentContext); err != nil {
		return nil, err
	}
	return s.store.UserPermissions(ctx, userID, assignmentContext)
}

func (s *Service) ListAssignments(ctx context.Context, userID string) ([]Assignment, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.ListAssignments(ctx, userID)
}
