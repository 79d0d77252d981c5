package authz

import "time"

// Role groups permissions. The id and name are immutable identity; only the
// description may change after creation.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PermissionRecord is a stored permission row. Name is the canonical
// resource:action:scope triple and the stable identity.
type PermissionRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Assignment gives a user a role in an optional context (tenant/company id;
// empty means global). Assignments are soft-deactivated, never deleted, so
// the audit trail of who held what survives revocation.
type Assignment struct {
	UserID     string    `json:"user_id"`
	RoleID     string    `json:"role_id"`
	Context    string    `json:"context,omitempty"`
	IsActive   bool      `json:"is_active"`
	AssignedBy string    `json:"assigned_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RoleUpdate carries the mutable role fields.
type RoleUpdate struct {
	Description *string
}

// Actor is a verified identity supplied by the upstream authentication layer
// together with the tenant context it is operating in.
type Actor struct {
	UserID  string `json:"user_id"`
	Context string `json:"context,omitempty"`
}

// Authenticated reports whether an identity was resolved at all.
func (a Actor) Authenticated() bool {
	return a.UserID != ""
}
