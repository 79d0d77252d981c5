package workflow

import "time"

// Instance is the live state record for one entity's progress through its
// lifecycle. (EntityType, EntityID) is unique; CurrentState is mutated only
// by Engine.Transition and instances are never deleted.
type Instance struct {
	ID           string     `json:"id"`
	EntityType   string     `json:"entity_type"`
	EntityID     string     `json:"entity_id"`
	CurrentState string     `json:"current_state"`
	OwnerID      string     `json:"owner_id,omitempty"`
	AssignedTo   string     `json:"assigned_to,omitempty"`
	DueAt        *time.Time `json:"due_at,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Event is one row of the append-only transition ledger. Events are never
// updated or deleted; folding them in CreatedAt order from the definition's
// initial state reproduces the instance's current state.
type Event struct {
	ID          string    `json:"id"`
	InstanceID  string    `json:"instance_id"`
	FromState   string    `json:"from_state"`
	ToState     string    `json:"to_state"`
	Trigger     string    `json:"trigger"`
	TriggeredBy string    `json:"triggered_by"`
	Comment     string    `json:"comment,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
