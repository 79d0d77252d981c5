package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"contractdesk.org/internal/workflow"
)

func TestFindInstance(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	due := now.Add(24 * time.Hour)

	mock.ExpectQuery("select id, entity_type, entity_id, current_state.*from workflow_instances").
		WithArgs("contract", "123").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "entity_type", "entity_id", "current_state", "owner_id", "assigned_to", "due_at", "started_at", "updated_at",
		}).AddRow("inst-1", "contract", "123", "final_approval", "owner-1", nil, due, now, now))

	inst, err := store.FindInstance(context.Background(), "contract", "123")
	if err != nil {
		t.Fatalf("FindInstance: %v", err)
	}
	if inst.ID != "inst-1" || inst.CurrentState != "final_approval" || inst.OwnerID != "owner-1" {
		t.Fatalf("unexpected instance: %+v", inst)
	}
	if inst.DueAt == nil || !inst.DueAt.Equal(due) {
		t.Fatalf("due date lost: %v", inst.DueAt)
	}
	if inst.AssignedTo != "" {
		t.Fatalf("null assigned_to must map to empty: %q", inst.AssignedTo)
	}
}

func TestFindInstanceNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select id, entity_type, entity_id, current_state.*from workflow_instances").
		WithArgs("contract", "missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.FindInstance(context.Background(), "contract", "missing"); !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func applyRequest(create bool) workflow.ApplyRequest {
	now := time.Now().UTC()
	return workflow.ApplyRequest{
		Create:    create,
		FromState: "final_approval",
		Instance: workflow.Instance{
			ID:           "inst-1",
			EntityType:   "contract",
			EntityID:     "123",
			CurrentState: "signature",
			OwnerID:      "owner-1",
			StartedAt:    now,
			UpdatedAt:    now,
		},
		Event: workflow.Event{
			ID:          "evt-1",
			InstanceID:  "inst-1",
			FromState:   "final_approval",
			ToState:     "signature",
			Trigger:     "approve_final",
			TriggeredBy: "manager-a",
			CreatedAt:   now,
		},
	}
}

func TestApplyUpdateCommitsInstanceAndEvent(t *testing.T) {
	store, mock := newMockStore(t)
	req := applyRequest(false)

	mock.ExpectBegin()
	mock.ExpectExec("update workflow_instances").
		WithArgs(req.Instance.CurrentState, sqlmock.AnyArg(), req.Instance.ID, req.FromState).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into workflow_events").
		WithArgs("evt-1", "inst-1", "final_approval", "signature", "approve_final", "manager-a", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	inst, err := store.Apply(context.Background(), req)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if inst.CurrentState != "signature" {
		t.Fatalf("unexpected instance: %+v", inst)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplyZeroRowUpdateIsConflict(t *testing.T) {
	store, mock := newMockStore(t)
	req := applyRequest(false)

	mock.ExpectBegin()
	mock.ExpectExec("update workflow_instances").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	if _, err := store.Apply(context.Background(), req); !errors.Is(err, workflow.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplyCreateUniqueViolationIsConflict(t *testing.T) {
	store, mock := newMockStore(t)
	req := applyRequest(true)

	mock.ExpectBegin()
	mock.ExpectExec("insert into workflow_instances").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	mock.ExpectRollback()

	if _, err := store.Apply(context.Background(), req); !errors.Is(err, workflow.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestApplyEventFailureRollsBackStateChange(t *testing.T) {
	store, mock := newMockStore(t)
	req := applyRequest(false)

	mock.ExpectBegin()
	mock.ExpectExec("update workflow_instances").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into workflow_events").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if _, err := store.Apply(context.Background(), req); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("state update must roll back with the event: %v", err)
	}
}

func TestEventsOrdered(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("select id, instance_id, from_state, to_state, trigger_name.*order by created_at, id").
		WithArgs("inst-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "instance_id", "from_state", "to_state", "trigger_name", "triggered_by", "comment", "created_at",
		}).
			AddRow("evt-1", "inst-1", "draft", "legal_review", "submit_for_review", "owner-1", "first", now).
			AddRow("evt-2", "inst-1", "legal_review", "hr_review", "approve_legal", "reviewer", nil, now.Add(time.Minute)))

	events, err := store.Events(context.Background(), "inst-1")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 2 || events[0].Trigger != "submit_for_review" || events[1].Comment != "" {
		t.Fatalf("unexpected events: %+v", events)
	}
}
