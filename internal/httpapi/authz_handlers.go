package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"contractdesk.org/internal/authz"
)

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updateRoleRequest struct {
	Description *string `json:"description"`
}

type updateRolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type assignRoleRequest struct {
	RoleID  string `json:"role_id"`
	Context string `json:"context"`
}

type accessCheckRequest struct {
	Permission string `json:"permission"`
}

func (a *API) handleRolesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createRole(w, r)
	case http.MethodGet:
		a.listRoles(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermission(w, r, authz.PermRoleManage) {
		return
	}
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	role, err := a.authz.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	a.audit(r.Context(), "authz.role.create", map[string]any{
		"role_id": role.ID,
		"name":    role.Name,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermission(w, r, authz.PermRoleManage) {
		return
	}
	roles, err := a.authz.ListRoles(r.Context())
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": roles})
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		a.roleByID(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "permissions":
		a.rolePermissions(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	}
}

func (a *API) roleByID(w http.ResponseWriter, r *http.Request, roleID string) {
	if !a.ensurePermission(w, r, authz.PermRoleManage) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		role, err := a.authz.GetRole(r.Context(), roleID)
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodPatch:
		var req updateRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		role, err := a.authz.UpdateRole(r.Context(), roleID, authz.RoleUpdate{Description: req.Description})
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		a.audit(r.Context(), "authz.role.update", map[string]any{"role_id": role.ID})
		writeJSON(w, http.StatusOK, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
	}
}

func (a *API) rolePermissions(w http.ResponseWriter, r *http.Request, roleID string) {
	if !a.ensurePermission(w, r, authz.PermRoleManage) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		perms, err := a.authz.RolePermissions(r.Context(), roleID)
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": perms})
	case http.MethodPut:
		var req updateRolePermissionsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		if err := a.authz.SetRolePermissions(r.Context(), roleID, req.Permissions); err != nil {
			handleAuthzError(w, r, err)
			return
		}
		a.audit(r.Context(), "authz.role.permissions.set", map[string]any{
			"role_id":     roleID,
			"permissions": req.Permissions,
		})
		perms, err := a.authz.RolePermissions(r.Context(), roleID)
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": perms})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermission(w, r, authz.PermRoleManage) {
		return
	}
	perms, err := a.authz.ListPermissions(r.Context())
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": perms})
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	userID := parts[0]
	switch {
	case len(parts) == 2 && parts[1] == "permissions":
		a.userPermissions(w, r, userID)
	case len(parts) == 2 && parts[1] == "assignments":
		a.userAssignments(w, r, userID)
	case len(parts) == 3 && parts[1] == "assignments":
		a.userAssignmentResource(w, r, userID, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	}
}

// userPermissions returns the effective permission names for the user in the
// context given by the ctx query parameter. Users may inspect themselves;
// everyone else needs assignment management rights.
func (a *API) userPermissions(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	act, ok := actor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}
	if act.UserID != userID {
		if err := a.guard.RequirePermission(r.Context(), act, authz.PermAssignmentManage); err != nil {
			handleAuthzError(w, r, err)
			return
		}
	}
	names, err := a.authz.UserPermissions(r.Context(), userID, r.URL.Query().Get("ctx"))
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"permissions": names,
	})
}

func (a *API) userAssignments(w http.ResponseWriter, r *http.Request, userID string) {
	if !a.ensurePermission(w, r, authz.PermAssignmentManage) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		items, err := a.authz.ListAssignments(r.Context(), userID)
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		var req assignRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		act, _ := actor(r)
		assignment, err := a.authz.Assign(r.Context(), userID, req.RoleID, req.Context, act.UserID)
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		a.audit(r.Context(), "authz.assignment.create", map[string]any{
			"subject_user_id": userID,
			"role_id":         assignment.RoleID,
			"ctx":             assignment.Context,
		})
		writeJSON(w, http.StatusCreated, assignment)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) userAssignmentResource(w http.ResponseWriter, r *http.Request, userID, roleID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.ensurePermission(w, r, authz.PermAssignmentManage) {
		return
	}
	if err := a.authz.Deactivate(r.Context(), userID, roleID, r.URL.Query().Get("ctx")); err != nil {
		handleAuthzError(w, r, err)
		return
	}
	a.audit(r.Context(), "authz.assignment.deactivate", map[string]any{
		"subject_user_id": userID,
		"role_id":         roleID,
		"ctx":             r.URL.Query().Get("ctx"),
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleAccessCheck evaluates a permission for the calling actor and returns
// the full decision. Useful for UI feature gating without firing the
// operation itself.
func (a *API) handleAccessCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	act, ok := actor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}
	var req accessCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	decision, err := a.guard.Check(r.Context(), act, req.Permission)
	if err != nil {
		if errors.Is(err, authz.ErrInvalidInput) {
			writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		// Resolution failure already denied the decision; report the deny
		// rather than leaking the store error.
	}
	writeJSON(w, http.StatusOK, decision)
}

func (a *API) ensurePermission(w http.ResponseWriter, r *http.Request, permission string) bool {
	act, ok := actor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return false
	}
	if err := a.guard.RequirePermission(r.Context(), act, permission); err != nil {
		handleAuthzError(w, r, err)
		return false
	}
	return true
}

func handleAuthzError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authz.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
	case errors.Is(err, authz.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden", "permission denied")
	case errors.Is(err, authz.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, authz.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, authz.ErrConflict):
		writeError(w, r, http.StatusConflict, "conflict", err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}
