package authz

import (
	"fmt"
	"strings"
)

// Permission scope values. ScopeOwn grants only the capability to attempt an
// operation; the caller must still verify ownership of the specific entity.
const (
	ScopeOwn = "own"
	ScopeAll = "all"
)

// SuperuserPermission grants every permission. The bypass is explicit: guard
// decisions report it as the matched permission so audit trails show it.
const SuperuserPermission = "*:*:all"

// Permission is a capability triple. Its canonical name
// "resource:action:scope" is the stable identity; permissions are created on
// demand and never renamed.
type Permission struct {
	Resource string
	Action   string
	Scope    string
}

// Name returns the canonical "resource:action:scope" form.
func (p Permission) Name() string {
	return p.Resource + ":" + p.Action + ":" + p.Scope
}

// ParsePermission validates and splits a canonical permission name.
func ParsePermission(name string) (Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Permission{}, fmt.Errorf("%w: permission name is required", ErrInvalidInput)
	}
	parts := strings.Split(name, ":")
	if len(parts) != 3 {
		return Permission{}, fmt.Errorf("%w: permission %q must have form resource:action:scope", ErrInvalidInput, name)
	}
	p := Permission{Resource: parts[0], Action: parts[1], Scope: parts[2]}
	for _, part := range parts {
		if part == "" {
			return Permission{}, fmt.Errorf("%w: permission %q has an empty segment", ErrInvalidInput, name)
		}
	}
	if p.Scope != ScopeOwn && p.Scope != ScopeAll {
		return Permission{}, fmt.Errorf("%w: permission %q has unsupported scope %q", ErrInvalidInput, name, p.Scope)
	}
	if (p.Resource == "*" || p.Action == "*") && p.Name() != SuperuserPermission {
		return Permission{}, fmt.Errorf("%w: wildcard segments are reserved for %s", ErrInvalidInput, SuperuserPermission)
	}
	return p, nil
}

// Builtin permission names for the contract domain.
const (
	PermContractSubmit    = "contract:submit:own"
	PermContractReview    = "contract:review:all"
	PermContractApprove   = "contract:approve:all"
	PermContractSign      = "contract:sign:all"
	PermContractExpire    = "contract:expire:all"
	PermContractTerminate = "contract:terminate:all"
	PermContractReopen    = "contract:reopen:all"
	PermWorkflowRead      = "workflow:read:all"
	PermRoleManage        = "role:manage:all"
	PermAssignmentManage  = "assignment:manage:all"
)

// BuiltinPermissions is ensured in the store at startup.
var BuiltinPermissions = []PermissionRecord{
	{Name: PermContractSubmit, Description: "Submit own contracts for review"},
	{Name: PermContractReview, Description: "Review contracts and request changes"},
	{Name: PermContractApprove, Description: "Give final approval on contracts"},
	{Name: PermContractSign, Description: "Record contract signature"},
	{Name: PermContractExpire, Description: "Expire unsigned contracts"},
	{Name: PermContractTerminate, Description: "Terminate contracts before activation"},
	{Name: PermContractReopen, Description: "Reopen expired contracts"},
	{Name: PermWorkflowRead, Description: "Read workflow state and history"},
	{Name: PermRoleManage, Description: "Manage roles and their permissions"},
	{Name: PermAssignmentManage, Description: "Manage user role assignments"},
	{Name: SuperuserPermission, Description: "Unrestricted access"},
}

// PermissionSet is the effective permission set of an actor in one context.
// Sets handed out by the resolver are shared and must not be mutated.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from canonical names.
func NewPermissionSet(names ...string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		set[n] = struct{}{}
	}
	return set
}

// Has reports whether the set contains the permission, honouring the
// superuser wildcard.
func (s PermissionSet) Has(name string) bool {
	if _, ok := s[name]; ok {
		return true
	}
	_, ok := s[SuperuserPermission]
	return ok
}

// Superuser reports whether the wildcard permission is present.
func (s PermissionSet) Superuser() bool {
	_, ok := s[SuperuserPermission]
	return ok
}

// Names returns the members in unspecified order.
func (s PermissionSet) Names() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	return out
}
