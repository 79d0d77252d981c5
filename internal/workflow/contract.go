package workflow

import (
	"context"
	"fmt"
	"time"

	"contractdesk.org/internal/authz"
)

// Contract lifecycle states.
const (
	StateDraft         = "draft"
	StateLegalReview   = "legal_review"
	StateHRReview      = "hr_review"
	StateFinalApproval = "final_approval"
	StateSignature     = "signature"
	StateSigned        = "signed"
	StateActive        = "active"
	StateExpired       = "expired"
	StateTerminated    = "terminated"
)

// Contract lifecycle triggers.
const (
	TriggerSubmitForReview = "submit_for_review"
	TriggerApproveLegal    = "approve_legal"
	TriggerApproveHR       = "approve_hr"
	TriggerApproveFinal    = "approve_final"
	TriggerRequestChanges  = "request_changes"
	TriggerSign            = "sign"
	TriggerActivate        = "activate"
	TriggerExpire          = "expire"
	TriggerTerminate       = "terminate"
	TriggerReopen          = "reopen"
)

// Guard predicate names.
const (
	GuardNotOverdue     = "not_overdue"
	GuardDueDateElapsed = "due_date_elapsed"
)

// EntityTypeContract is the builtin entity type.
const EntityTypeContract = "contract"

// ContractDefinition is the builtin contract approval lifecycle. Drafts walk
// legal review, HR review and final approval; any reviewer can send the
// contract back to draft. Signing happens in two steps (counterparty signs,
// then the contract is activated). Terminal states have no outgoing edges
// except the explicit reopen edge from expired back to draft.
func ContractDefinition() Definition {
	return Definition{
		EntityType:   EntityTypeContract,
		InitialState: StateDraft,
		States: []string{
			StateDraft,
			StateLegalReview,
			StateHRReview,
			StateFinalApproval,
			StateSignature,
			StateSigned,
			StateActive,
			StateExpired,
			StateTerminated,
		},
		Transitions: []Transition{
			{From: StateDraft, Trigger: TriggerSubmitForReview, To: StateLegalReview, Permission: authz.PermContractSubmit},

			{From: StateLegalReview, Trigger: TriggerApproveLegal, To: StateHRReview, Permission: authz.PermContractReview},
			{From: StateLegalReview, Trigger: TriggerRequestChanges, To: StateDraft, Permission: authz.PermContractReview},

			{From: StateHRReview, Trigger: TriggerApproveHR, To: StateFinalApproval, Permission: authz.PermContractReview},
			{From: StateHRReview, Trigger: TriggerRequestChanges, To: StateDraft, Permission: authz.PermContractReview},

			{From: StateFinalApproval, Trigger: TriggerApproveFinal, To: StateSignature, Permission: authz.PermContractApprove},
			{From: StateFinalApproval, Trigger: TriggerRequestChanges, To: StateDraft, Permission: authz.PermContractReview},

			{From: StateSignature, Trigger: TriggerSign, To: StateSigned, Permission: authz.PermContractSign, Guard: GuardNotOverdue},
			{From: StateSignature, Trigger: TriggerExpire, To: StateExpired, Permission: authz.PermContractExpire, Guard: GuardDueDateElapsed},
			{From: StateSignature, Trigger: TriggerTerminate, To: StateTerminated, Permission: authz.PermContractTerminate},

			{From: StateSigned, Trigger: TriggerActivate, To: StateActive, Permission: authz.PermContractSign},
			{From: StateSigned, Trigger: TriggerExpire, To: StateExpired, Permission: authz.PermContractExpire, Guard: GuardDueDateElapsed},
			{From: StateSigned, Trigger: TriggerTerminate, To: StateTerminated, Permission: authz.PermContractTerminate},

			{From: StateExpired, Trigger: TriggerReopen, To: StateDraft, Permission: authz.PermContractReopen},
		},
	}
}

// ContractGuards returns the guard predicates referenced by the contract
// definition.
func ContractGuards() map[string]GuardFunc {
	return map[string]GuardFunc{
		GuardNotOverdue:     notOverdue,
		GuardDueDateElapsed: dueDateElapsed,
	}
}

func notOverdue(_ context.Context, instance Instance, now time.Time) error {
	if instance.DueAt != nil && now.After(*instance.DueAt) {
		return fmt.Errorf("contract passed its due date %s", instance.DueAt.UTC().Format(time.RFC3339))
	}
	return nil
}

func dueDateElapsed(_ context.Context, instance Instance, now time.Time) error {
	if instance.DueAt == nil {
		return fmt.Errorf("contract has no due date to expire against")
	}
	if !now.After(*instance.DueAt) {
		return fmt.Errorf("contract due date %s has not elapsed", instance.DueAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// NewDefaultRegistry builds the registry with the builtin definitions.
func NewDefaultRegistry() (*Registry, error) {
	return NewRegistry([]Definition{ContractDefinition()}, ContractGuards())
}
