package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"contractdesk.org/internal/authz"
	"contractdesk.org/internal/ids"
)

func (s *Store) CreateRole(ctx context.Context, name, description string) (authz.Role, error) {
	if s.db == nil {
		return authz.Role{}, errors.New("database connection unavailable")
	}
	var (
		role authz.Role
		desc sql.NullString
	)
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description)
		values ($1, $2, $3)
		returning id, name, description, created_at, updated_at
	`, ids.New(), name, nullIfEmpty(description))
	if err := row.Scan(&role.ID, &role.Name, &desc, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return authz.Role{}, authz.ErrConflict
		}
		return authz.Role{}, err
	}
	if desc.Valid {
		role.Description = desc.String
	}
	return role, nil
}

func (s *Store) GetRole(ctx context.Context, roleID string) (authz.Role, error) {
	return s.roleBy(ctx, `id = $1`, roleID)
}

func (s *Store) GetRoleByName(ctx context.Context, name string) (authz.Role, error) {
	return s.roleBy(ctx, `name = $1`, name)
}

func (s *Store) roleBy(ctx context.Context, cond, arg string) (authz.Role, error) {
	if s.db == nil {
		return authz.Role{}, errors.New("database connection unavailable")
	}
	var (
		role authz.Role
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, created_at, updated_at
		from roles
		where `+cond, arg).Scan(&role.ID, &role.Name, &desc, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Role{}, authz.ErrNotFound
	}
	if err != nil {
		return authz.Role{}, err
	}
	if desc.Valid {
		role.Description = desc.String
	}
	return role, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]authz.Role, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, created_at, updated_at
		from roles
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []authz.Role
	for rows.Next() {
		var (
			role authz.Role
			desc sql.NullString
		)
		if err := rows.Scan(&role.ID, &role.Name, &desc, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			role.Description = desc.String
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) UpdateRole(ctx context.Context, roleID string, upd authz.RoleUpdate) (authz.Role, error) {
	if s.db == nil {
		return authz.Role{}, errors.New("database connection unavailable")
	}
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Description != nil {
		if *upd.Description == "" {
			sets = append(sets, "description = NULL")
		} else {
			sets = append(sets, fmt.Sprintf("description = $%d", idx))
			args = append(args, *upd.Description)
			idx++
		}
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update roles set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, roleID)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return authz.Role{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return authz.Role{}, err
		}
		if aff == 0 {
			return authz.Role{}, authz.ErrNotFound
		}
	}
	return s.GetRole(ctx, roleID)
}

func (s *Store) EnsurePermissions(ctx context.Context, perms []authz.PermissionRecord) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	if len(perms) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, perm := range perms {
		if _, err := tx.ExecContext(ctx, `
			insert into permissions (id, name, description)
			values ($1, $2, $3)
			on conflict (name) do nothing
		`, ids.New(), perm.Name, nullIfEmpty(perm.Description)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListPermissions(ctx context.Context) ([]authz.PermissionRecord, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, created_at
		from permissions
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissionRecords(rows)
}

// SetRolePermissions replaces the role's permission set in one transaction.
// Permissions are created on demand: the canonical name is the stable
// identity.
func (s *Store) SetRolePermissions(ctx context.Context, roleID string, names []string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from roles where id = $1`, roleID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authz.ErrNotFound
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	if len(names) == 0 {
		return tx.Commit()
	}

	for _, name := range names {
		var permID string
		err := tx.QueryRowContext(ctx, `
			insert into permissions (id, name)
			values ($1, $2)
			on conflict (name) do update set name = excluded.name
			returning id
		`, ids.New(), name).Scan(&permID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			values ($1, $2)
		`, roleID, permID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) RolePermissions(ctx context.Context, roleID string) ([]authz.PermissionRecord, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.description, p.created_at
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.name
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissionRecords(rows)
}

func scanPermissionRecords(rows *sql.Rows) ([]authz.PermissionRecord, error) {
	var perms []authz.PermissionRecord
	for rows.Next() {
		var (
			perm authz.PermissionRecord
			desc sql.NullString
		)
		if err := rows.Scan(&perm.ID, &perm.Name, &desc, &perm.CreatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			perm.Description = desc.String
		}
		perms = append(perms, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// CreateAssignment activates a (user, role, context) assignment. Context is
// stored as an empty string for global assignments so the uniqueness
// constraint covers it. Re-assigning a previously deactivated triple
// reactivates the existing row, keeping its audit trail.
func (s *Store) CreateAssignment(ctx context.Context, a authz.Assignment) (authz.Assignment, error) {
	if s.db == nil {
		return authz.Assignment{}, errors.New("database connection unavailable")
	}
	var (
		out        authz.Assignment
		assignedBy sql.NullString
	)
	row := s.db.QueryRowContext(ctx, `
		insert into user_role_assignments (user_id, role_id, context, is_active, assigned_by)
		values ($1, $2, $3, true, $4)
		on conflict (user_id, role_id, context) do update
		set is_active = true, assigned_by = excluded.assigned_by, updated_at = now()
		returning user_id, role_id, context, is_active, assigned_by, created_at, updated_at
	`, a.UserID, a.RoleID, a.Context, nullIfEmpty(a.AssignedBy))
	if err := row.Scan(&out.UserID, &out.RoleID, &out.Context, &out.IsActive, &assignedBy, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return authz.Assignment{}, authz.ErrNotFound
		}
		return authz.Assignment{}, err
	}
	if assignedBy.Valid {
		out.AssignedBy = assignedBy.String
	}
	return out, nil
}

// DeactivateAssignment soft-disables the assignment; the row stays for the
// audit trail.
func (s *Store) DeactivateAssignment(ctx context.Context, userID, roleID, assignmentContext string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update user_role_assignments
		set is_active = false, updated_at = now()
		where user_id = $1 and role_id = $2 and context = $3 and is_active
	`, userID, roleID, assignmentContext)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return authz.ErrNotFound
	}
	return nil
}

func (s *Store) ListAssignments(ctx context.Context, userID string) ([]authz.Assignment, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select user_id, role_id, context, is_active, assigned_by, created_at, updated_at
		from user_role_assignments
		where user_id = $1
		order by role_id, context
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []authz.Assignment
	for rows.Next() {
		var (
			a          authz.Assignment
			assignedBy sql.NullString
		)
		if err := rows.Scan(&a.UserID, &a.RoleID, &a.Context, &a.IsActive, &assignedBy, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if assignedBy.Valid {
			a.AssignedBy = assignedBy.String
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

// UserPermissions aggregates the names reachable through active assignments
// matching the context exactly plus global (empty-context) assignments.
func (s *Store) UserPermissions(ctx context.Context, userID, assignmentContext string) ([]string, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select distinct p.name
		from user_role_assignments a
		join role_permissions rp on rp.role_id = a.role_id
		join permissions p on p.id = rp.permission_id
		where a.user_id = $1 and a.is_active and (a.context = $2 or a.context = '')
	`, userID, assignmentContext)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		perms = append(perms, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}
