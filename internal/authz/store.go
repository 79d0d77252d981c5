package authz

import "context"

// Store describes persistence operations required by the authz subsystem.
// Implementations map uniqueness violations to ErrConflict and missing rows
// to ErrNotFound.
type Store interface {
	CreateRole(ctx context.Context, name, description string) (Role, error)
	GetRole(ctx context.Context, roleID string) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, roleID string, upd RoleUpdate) (Role, error)

	EnsurePermissions(ctx context.Context, perms []PermissionRecord) error
	ListPermissions(ctx context.Context) ([]PermissionRecord, error)
	SetRolePermissions(ctx context.Context, roleID string, names []string) error
	RolePermissions(ctx context.Context, roleID string) ([]PermissionRecord, error)

	CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
	DeactivateAssignment(ctx context.Context, userID, roleID, assignmentContext string) error
	ListAssignments(ctx context.Context, userID string) ([]Assignment, error)

	// UserPermissions aggregates permission names reachable through active
	// assignments whose context equals assignmentContext, plus global
	// assignments. With an empty context only global assignments apply.
	UserPermissions(ctx context.Context, userID, assignmentContext string) ([]string, error)
}
