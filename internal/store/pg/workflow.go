package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"contractdesk.org/internal/workflow"
)

func (s *Store) FindInstance(ctx context.Context, entityType, entityID string) (workflow.Instance, error) {
	if s.db == nil {
		return workflow.Instance{}, errors.New("database connection unavailable")
	}
	var (
		inst       workflow.Instance
		owner      sql.NullString
		assignedTo sql.NullString
		dueAt      sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select id, entity_type, entity_id, current_state, owner_id, assigned_to, due_at, started_at, updated_at
		from workflow_instances
		where entity_type = $1 and entity_id = $2
	`, entityType, entityID).Scan(
		&inst.ID, &inst.EntityType, &inst.EntityID, &inst.CurrentState,
		&owner, &assignedTo, &dueAt, &inst.StartedAt, &inst.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Instance{}, fmt.Errorf("%w: no instance for %s/%s", workflow.ErrNotFound, entityType, entityID)
	}
	if err != nil {
		return workflow.Instance{}, err
	}
	if owner.Valid {
		inst.OwnerID = owner.String
	}
	if assignedTo.Valid {
		inst.AssignedTo = assignedTo.String
	}
	if dueAt.Valid {
		due := dueAt.Time
		inst.DueAt = &due
	}
	return inst, nil
}

// Apply commits one transition: the instance insert or compare-and-set
// update and the event append share a transaction, so both are visible or
// neither is. A zero-row update and an insert against an existing
// (entity_type, entity_id) both surface as ErrConflict.
func (s *Store) Apply(ctx context.Context, req workflow.ApplyRequest) (workflow.Instance, error) {
	if s.db == nil {
		return workflow.Instance{}, errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return workflow.Instance{}, err
	}
	defer func() { _ = tx.Rollback() }()

	inst := req.Instance
	if req.Create {
		if _, err := tx.ExecContext(ctx, `
			insert into workflow_instances (id, entity_type, entity_id, current_state, owner_id, assigned_to, due_at, started_at, updated_at)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, inst.ID, inst.EntityType, inst.EntityID, inst.CurrentState,
			nullIfEmpty(inst.OwnerID), nullIfEmpty(inst.AssignedTo), nullTime(inst.DueAt),
			inst.StartedAt, inst.UpdatedAt); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return workflow.Instance{}, fmt.Errorf("%w: instance already exists for %s/%s", workflow.ErrConflict, inst.EntityType, inst.EntityID)
			}
			return workflow.Instance{}, err
		}
	} else {
		res, err := tx.ExecContext(ctx, `
			update workflow_instances
			set current_state = $1, updated_at = $2
			where id = $3 and current_state = $4
		`, inst.CurrentState, inst.UpdatedAt, inst.ID, req.FromState)
		if err != nil {
			return workflow.Instance{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return workflow.Instance{}, err
		}
		if aff == 0 {
			return workflow.Instance{}, fmt.Errorf("%w: instance %s moved past %q", workflow.ErrConflict, inst.ID, req.FromState)
		}
	}

	evt := req.Event
	if _, err := tx.ExecContext(ctx, `
		insert into workflow_events (id, instance_id, from_state, to_state, trigger_name, triggered_by, comment, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, evt.ID, evt.InstanceID, evt.FromState, evt.ToState, evt.Trigger,
		evt.TriggeredBy, nullIfEmpty(evt.Comment), evt.CreatedAt); err != nil {
		return workflow.Instance{}, err
	}

	if err := tx.Commit(); err != nil {
		return workflow.Instance{}, err
	}
	return inst, nil
}

func (s *Store) Events(ctx context.Context, instanceID string) ([]workflow.Event, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, instance_id, from_state, to_state, trigger_name, triggered_by, comment, created_at
		from workflow_events
		where instance_id = $1
		order by created_at, id
	`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []workflow.Event
	for rows.Next() {
		var (
			evt     workflow.Event
			comment sql.NullString
		)
		if err := rows.Scan(&evt.ID, &evt.InstanceID, &evt.FromState, &evt.ToState,
			&evt.Trigger, &evt.TriggeredBy, &comment, &evt.CreatedAt); err != nil {
			return nil, err
		}
		if comment.Valid {
			evt.Comment = comment.String
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
