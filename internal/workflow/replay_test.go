package workflow

import (
	"testing"
)

func contractEvents(moves ...[3]string) []Event {
	events := make([]Event, 0, len(moves))
	for i, m := range moves {
		events = append(events, Event{
			ID:        "e" + string(rune('0'+i)),
			FromState: m[0],
			Trigger:   m[1],
			ToState:   m[2],
		})
	}
	return events
}

func TestReplayFoldsLedger(t *testing.T) {
	reg, err := NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}
	def, _ := reg.Lookup(EntityTypeContract)

	state, err := Replay(def, contractEvents(
		[3]string{StateDraft, TriggerSubmitForReview, StateLegalReview},
		[3]string{StateLegalReview, TriggerApproveLegal, StateHRReview},
		[3]string{StateHRReview, TriggerRequestChanges, StateDraft},
		[3]string{StateDraft, TriggerSubmitForReview, StateLegalReview},
	))
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if state != StateLegalReview {
		t.Fatalf("unexpected folded state %q", state)
	}

	// Empty ledger replays to the initial state.
	state, err = Replay(def, nil)
	if err != nil || state != StateDraft {
		t.Fatalf("empty ledger: state=%q err=%v", state, err)
	}
}

func TestReplayRejectsBrokenLedgers(t *testing.T) {
	reg, err := NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}
	def, _ := reg.Lookup(EntityTypeContract)

	// Gap: second event does not start where the first ended.
	if _, err := Replay(def, contractEvents(
		[3]string{StateDraft, TriggerSubmitForReview, StateLegalReview},
		[3]string{StateHRReview, TriggerApproveHR, StateFinalApproval},
	)); err == nil {
		t.Fatalf("expected gap detection")
	}

	// Undeclared edge.
	if _, err := Replay(def, contractEvents(
		[3]string{StateDraft, TriggerApproveFinal, StateSignature},
	)); err == nil {
		t.Fatalf("expected undeclared edge detection")
	}

	// Declared edge recorded with the wrong landing state.
	if _, err := Replay(def, contractEvents(
		[3]string{StateDraft, TriggerSubmitForReview, StateHRReview},
	)); err == nil {
		t.Fatalf("expected landing state mismatch detection")
	}
}

func TestVerifyHistory(t *testing.T) {
	reg, err := NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}
	def, _ := reg.Lookup(EntityTypeContract)

	events := contractEvents(
		[3]string{StateDraft, TriggerSubmitForReview, StateLegalReview},
	)
	if err := VerifyHistory(def, Instance{CurrentState: StateLegalReview}, events); err != nil {
		t.Fatalf("VerifyHistory: %v", err)
	}
	if err := VerifyHistory(def, Instance{CurrentState: StateDraft}, events); err == nil {
		t.Fatalf("expected mismatch between ledger and instance state")
	}
}
