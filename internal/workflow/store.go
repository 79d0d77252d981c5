package workflow

import "context"

// ApplyRequest carries one transition commit. When Create is set the
// instance row is inserted; otherwise its current_state is updated under a
// compare-and-set condition on FromState. The event row is appended in the
// same transaction either way: both writes commit together or neither does.
type ApplyRequest struct {
	Instance  Instance
	Create    bool
	FromState string
	Event     Event
}

// Store describes persistence operations required by the workflow engine.
// Implementations map a zero-row compare-and-set update and a uniqueness
// violation on insert to ErrConflict, and a missing instance to ErrNotFound.
type Store interface {
	FindInstance(ctx context.Context, entityType, entityID string) (Instance, error)
	Apply(ctx context.Context, req ApplyRequest) (Instance, error)

	// Events returns the instance's ledger ordered by created_at, then id.
	Events(ctx context.Context, instanceID string) ([]Event, error)
}
