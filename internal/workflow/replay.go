package workflow

import "fmt"

// Replay folds an instance's events in order from the definition's initial
// state and returns the resulting state. Each event must be a declared edge
// whose from state matches the folded state, so a tampered or reordered
// ledger is detected rather than silently accepted.
func Replay(def *Definition, events []Event) (string, error) {
	state := def.InitialState
	for i, evt := range events {
		if evt.FromState != state {
			return "", fmt.Errorf("event %d (%s) starts at %q but replay reached %q", i, evt.ID, evt.FromState, state)
		}
		edge, ok := def.FindTransition(evt.FromState, evt.Trigger)
		if !ok {
			return "", fmt.Errorf("event %d (%s) uses undeclared edge %q from %q", i, evt.ID, evt.Trigger, evt.FromState)
		}
		if edge.To != evt.ToState {
			return "", fmt.Errorf("event %d (%s) lands at %q but edge %q leads to %q", i, evt.ID, evt.ToState, evt.Trigger, edge.To)
		}
		state = evt.ToState
	}
	return state, nil
}

// VerifyHistory checks the replay invariant: the folded ledger must
// reproduce the instance's current state exactly.
func VerifyHistory(def *Definition, instance Instance, events []Event) error {
	state, err := Replay(def, events)
	if err != nil {
		return err
	}
	if state != instance.CurrentState {
		return fmt.Errorf("ledger replays to %q but instance is at %q", state, instance.CurrentState)
	}
	return nil
}
