package workflow

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"contractdesk.org/internal/authz"
)

// stubAuthorizer resolves permissions from an in-memory map, mirroring the
// guard's deny semantics.
type stubAuthorizer struct {
	perms      map[string]authz.PermissionSet
	resolveErr error
}

func (s *stubAuthorizer) Check(_ context.Context, actor authz.Actor, permission string) (authz.Decision, error) {
	if s.resolveErr != nil {
		return authz.Decision{Reason: authz.ReasonForbidden, Permission: permission}, s.resolveErr
	}
	if !actor.Authenticated() {
		return authz.Decision{Reason: authz.ReasonUnauthenticated, Permission: permission}, nil
	}
	if s.perms[actor.UserID].Has(permission) {
		return authz.Decision{Allowed: true, Permission: permission, Matched: permission}, nil
	}
	return authz.Decision{Reason: authz.ReasonForbidden, Permission: permission}, nil
}

func (s *stubAuthorizer) RequirePermission(ctx context.Context, actor authz.Actor, permission string) error {
	decision, err := s.Check(ctx, actor, permission)
	if err != nil {
		return fmt.Errorf("%w: permission resolution failed: %v", authz.ErrForbidden, err)
	}
	if decision.Allowed {
		return nil
	}
	if decision.Reason == authz.ReasonUnauthenticated {
		return authz.ErrUnauthenticated
	}
	return authz.ErrForbidden
}

// memStore implements Store in memory with real compare-and-set semantics.
type memStore struct {
	mu        sync.Mutex
	instances map[string]Instance
	events    map[string][]Event

	findHook  func()
	applyHook func(req ApplyRequest) error
}

func newMemStore() *memStore {
	return &memStore{
		instances: make(map[string]Instance),
		events:    make(map[string][]Event),
	}
}

func storeKey(entityType, entityID string) string {
	return entityType + "/" + entityID
}

func (m *memStore) FindInstance(_ context.Context, entityType, entityID string) (Instance, error) {
	if m.findHook != nil {
		m.findHook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[storeKey(entityType, entityID)]
	if !ok {
		return Instance{}, fmt.Errorf("%w: no instance for %s/%s", ErrNotFound, entityType, entityID)
	}
	return inst, nil
}

func (m *memStore) Apply(_ context.Context, req ApplyRequest) (Instance, error) {
	if m.applyHook != nil {
		if err := m.applyHook(req); err != nil {
			return Instance{}, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := storeKey(req.Instance.EntityType, req.Instance.EntityID)
	if req.Create {
		if _, exists := m.instances[key]; exists {
			return Instance{}, fmt.Errorf("%w: instance already exists", ErrConflict)
		}
	} else {
		cur, ok := m.instances[key]
		if !ok {
			return Instance{}, fmt.Errorf("%w: no instance for %s", ErrNotFound, key)
		}
		if cur.CurrentState != req.FromState {
			return Instance{}, fmt.Errorf("%w: state moved to %q", ErrConflict, cur.CurrentState)
		}
	}
	m.instances[key] = req.Instance
	m.events[req.Instance.ID] = append(m.events[req.Instance.ID], req.Event)
	return req.Instance, nil
}

func (m *memStore) Events(_ context.Context, instanceID string) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.events[instanceID]
	out := make([]Event, len(events))
	copy(out, events)
	return out, nil
}

func (m *memStore) seed(inst Instance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[storeKey(inst.EntityType, inst.EntityID)] = inst
}

func (m *memStore) instance(t *testing.T, entityType, entityID string) Instance {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[storeKey(entityType, entityID)]
	if !ok {
		t.Fatalf("instance %s/%s missing", entityType, entityID)
	}
	return inst
}

func newTestEngine(t *testing.T, store Store, auth Authorizer, opts ...EngineOption) *Engine {
	t.Helper()
	reg, err := NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}
	engine, err := NewEngine(reg, auth, store, opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

func permsFor(pairs map[string][]string) map[string]authz.PermissionSet {
	out := make(map[string]authz.PermissionSet, len(pairs))
	for user, names := range pairs {
		out[user] = authz.NewPermissionSet(names...)
	}
	return out
}

func TestTransitionApproveFinal(t *testing.T) {
	store := newMemStore()
	store.seed(Instance{
		ID:           "inst-123",
		EntityType:   EntityTypeContract,
		EntityID:     "123",
		CurrentState: StateFinalApproval,
		OwnerID:      "owner-1",
		StartedAt:    time.Now().UTC(),
	})
	auth := &stubAuthorizer{perms: permsFor(map[string][]string{
		"manager-a": {authz.PermContractApprove},
	})}
	engine := newTestEngine(t, store, auth)

	result, err := engine.Transition(context.Background(), authz.Actor{UserID: "manager-a"}, TransitionRequest{
		EntityType: EntityTypeContract,
		EntityID:   "123",
		Trigger:    TriggerApproveFinal,
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if result.FromState != StateFinalApproval || result.ToState != StateSignature {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.EventID == "" || result.Created {
		t.Fatalf("unexpected result metadata: %+v", result)
	}
	if got := store.instance(t, EntityTypeContract, "123").CurrentState; got != StateSignature {
		t.Fatalf("state not persisted: %q", got)
	}
	events, _ := store.Events(context.Background(), "inst-123")
	if len(events) != 1 || events[0].Trigger != TriggerApproveFinal || events[0].TriggeredBy != "manager-a" {
		t.Fatalf("event ledger wrong: %+v", events)
	}
}

func TestTransitionForbiddenLeavesStateUntouched(t *testing.T) {
	store := newMemStore()
	store.seed(Instance{
		ID:           "inst-123",
		EntityType:   EntityTypeContract,
		EntityID:     "123",
		CurrentState: StateFinalApproval,
	})
	auth := &stubAuthorizer{perms: permsFor(nil)}
	engine := newTestEngine(t, store, auth)

	_, err := engine.Transition(context.Background(), authz.Actor{UserID: "user-b"}, TransitionRequest{
		EntityType: EntityTypeContract,
		EntityID:   "123",
		Trigger:    TriggerApproveFinal,
	})
	if !errors.Is(err, authz.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if got := store.instance(t, EntityTypeContract, "123").CurrentState; got != StateFinalApproval {
		t.Fatalf("state mutated on denial: %q", got)
	}
	events, _ := store.Events(context.Background(), "inst-123")
	if len(events) != 0 {
		t.Fatalf("no event may be written on denial: %+v", events)
	}
}

func TestTransitionUnauthenticated(t *testing.T) {
	store := newMemStore()
	store.seed(Instance{ID: "i", EntityType: EntityTypeContract, EntityID: "123", CurrentState: StateDraft})
	engine := newTestEngine(t, store, &stubAuthorizer{})

	_, err := engine.Transition(context.Background(), authz.Actor{}, TransitionRequest{
		EntityType: EntityTypeContract,
		EntityID:   "123",
		Trigger:    TriggerSubmitForReview,
	})
	if !errors.Is(err, authz.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestTransitionInvalidFromState(t *testing.T) {
	store := newMemStore()
	store.seed(Instance{
		ID:           "inst-123",
		EntityType:   EntityTypeContract,
		EntityID:     "123",
		CurrentState: StateDraft,
	})
	auth := &stubAuthorizer{perms: permsFor(map[string][]string{
		"manager-a": {authz.PermContractApprove},
	})}
	engine := newTestEngine(t, store, auth)

	_, err := engine.Transition(context.Background(), authz.Actor{UserID: "manager-a"}, TransitionRequest{
		EntityType: EntityTypeContract,
		EntityID:   "123",
		Trigger:    TriggerApproveFinal,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if got := store.instance(t, EntityTypeContract, "123").CurrentState; got != StateDraft {
		t.Fatalf("state mutated on invalid transition: %q", got)
	}
}

func TestTransitionUnknownEntityType(t *testing.T) {
	engine := newTestEngine(t, newMemStore(), &stubAuthorizer{})
	_, err := engine.Transition(context.Background(), authz.Actor{UserID: "u"}, TransitionRequest{
		EntityType: "invoice",
		EntityID:   "1",
		Trigger:    "pay",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitionValidationError(t *testing.T) {
	engine := newTestEngine(t, newMemStore(), &stubAuthorizer{})
	_, err := engine.Transition(context.Background(), authz.Actor{UserID: "u"}, TransitionRequest{
		EntityType: EntityTypeContract,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestTransitionLazyCreationIsAtomic(t *testing.T) {
	store := newMemStore()
	auth := &stubAuthorizer{perms: permsFor(map[string][]string{
		"owner-9": {authz.PermContractSubmit},
	})}
	engine := newTestEngine(t, store, auth)

	result, err := engine.Transition(context.Background(), authz.Actor{UserID: "owner-9"}, TransitionRequest{
		EntityType: EntityTypeContract,
		EntityID:   "999",
		Trigger:    TriggerSubmitForReview,
		Comment:    "first submission",
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if !result.Created || result.FromState != StateDraft || result.ToState != StateLegalReview {
		t.Fatalf("unexpected result: %+v", result)
	}

	// The stored instance only ever exists past its first edge; it was never
	// observable parked at the initial state.
	inst := store.instance(t, EntityTypeContract, "999")
	if inst.CurrentState != StateLegalReview {
		t.Fatalf("instance state: %q", inst.CurrentState)
	}
	if inst.OwnerID != "owner-9" {
		t.Fatalf("lazy creation must record the creating actor as owner: %+v", inst)
	}
	events, _ := store.Events(context.Background(), inst.ID)
	if len(events) != 1 || events[0].FromState != StateDraft || events[0].Comment != "first submission" {
		t.Fatalf("event ledger wrong: %+v", events)
	}
}

func TestTransitionOwnScopeRequiresOwnership(t *testing.T) {
	store := newMemStore()
	store.seed(Instance{
		ID:           "inst-7",
		EntityType:   EntityTypeContract,
		EntityID:     "7",
		CurrentState: StateDraft,
		OwnerID:      "owner-1",
	})
	auth := &stubAuthorizer{perms: permsFor(map[string][]string{
		"owner-1":  {authz.PermContractSubmit},
		"intruder": {authz.PermContractSubmit},
	})}
	engine := newTestEngine(t, store, auth)

	// Capability alone is not enough for :own scope.
	_, err := engine.Transition(context.Background(), authz.Actor{UserID: "intruder"}, TransitionRequest{
		EntityType: EntityTypeContract,
		EntityID:   "7",
		Trigger:    TriggerSubmitForReview,
	})
	if !errors.Is(err, authz.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-owner, got %v", err)
	}

	if _, err := engine.Transition(context.Background(), authz.Actor{UserID: "owner-1"}, TransitionRequest{
		EntityType: EntityTypeContract,
		EntityID:   "7",
		Trigger:    TriggerSubmitForReview,
	}); err != nil {
		t.Fatalf("owner must pass: %v", err)
	}
}

func TestTransitionGuardRejected(t *testing.T) {
	due := time.Now().Add(-time.Hour).UTC()
	store := newMemStore()
	store.seed(Instance{
		ID:           "inst-5",
		EntityType:   EntityTypeContract,
		EntityID:     "5",
		CurrentState: StateSignature,
		DueAt:        &due,
	})
	auth := &stubAuthorizer{perms: permsFor(map[string][]string{
		"signer": {authz.PermContractSign, authz.PermContractExpire},
	})}
	engine := newTestEngine(t, store, auth)

	_, err := engine.Transition(context.Background(), authz.Actor{UserID: "signer"}, TransitionRequest{
		EntityType: EntityTypeContract,
		EntityID:   "5",
		Trigger:    TriggerSign,
	})
	if !errors.Is(err, ErrGuardRejected) {
		t.Fatalf("expected ErrGuardRejected for overdue sign, got %v", err)
	}
	if got := store.instance(t, EntityTypeContract, "5").CurrentState; got != StateSignature {
		t.Fatalf("state mutated on guard rejection: %q", got)
	}

	// The elapsed due date satisfies the expire guard instead.
	result, err := engine.Transition(context.Background(), authz.Actor{UserID: "signer"}, TransitionRequest{
		EntityType: EntityTypeContract,
		EntityID:   "5",
		Trigger:    TriggerExpire,
	})
	if err != nil {
		t.Fatalf("expire must pass: %v", err)
	}
	if result.ToState != StateExpired {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestConcurrentTransitionsExactlyOneWins(t *testing.T) {
	store := newMemStore()
	store.seed(Instance{
		ID:           "inst-9",
		EntityType:   EntityTypeContract,
		EntityID:     "9",
		CurrentState: StateLegalReview,
	})
	auth := &stubAuthorizer{perms: permsFor(map[string][]string{
		"reviewer-1": {authz.PermContractReview},
		"reviewer-2": {authz.PermContractReview},
	})}
	engine := newTestEngine(t, store, auth)

	// Both callers read the same precondition state before either applies.
	var barrier sync.WaitGroup
	barrier.Add(2)
	store.findHook = func() {
		barrier.Done()
		barrier.Wait()
	}

	type outcome struct {
		result TransitionResult
		err    error
	}
	results := make(chan outcome, 2)
	go func() {
		r, err := engine.Transition(context.Background(), authz.Actor{UserID: "reviewer-1"}, TransitionRequest{
			EntityType: EntityTypeContract, EntityID: "9", Trigger: TriggerApproveLegal,
		})
		results <- outcome{r, err}
	}()
	go func() {
		r, err := engine.Transition(context.Background(), authz.Actor{UserID: "reviewer-2"}, TransitionRequest{
			EntityType: EntityTypeContract, EntityID: "9", Trigger: TriggerRequestChanges,
		})
		results <- outcome{r, err}
	}()

	var winner *TransitionResult
	conflicts := 0
	for i := 0; i < 2; i++ {
		o := <-results
		switch {
		case o.err == nil:
			if winner != nil {
				t.Fatalf("both transitions succeeded")
			}
			r := o.result
			winner = &r
		case errors.Is(o.err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", o.err)
		}
	}
	if winner == nil || conflicts != 1 {
		t.Fatalf("expected exactly one winner and one conflict, winner=%v conflicts=%d", winner, conflicts)
	}
	if got := store.instance(t, EntityTypeContract, "9").CurrentState; got != winner.ToState {
		t.Fatalf("final state %q does not match winner's %q", got, winner.ToState)
	}
}

func TestLostCreationRaceReloadsOnce(t *testing.T) {
	store := newMemStore()
	auth := &stubAuthorizer{perms: permsFor(map[string][]string{
		"owner-9": {authz.PermContractSubmit},
	})}
	engine := newTestEngine(t, store, auth)

	finds := 0
	store.findHook = func() { finds++ }
	// Winner slips in between our miss and our insert: it materializes the
	// instance just before our create commits.
	store.applyHook = func(req ApplyRequest) error {
		if req.Create {
			store.seed(Instance{
				ID:           "winner-inst",
				EntityType:   EntityTypeContract,
				EntityID:     "999",
				CurrentState: StateLegalReview,
				OwnerID:      "someone-else",
			})
		}
		return nil
	}

	_, err := engine.Transition(context.Background(), authz.Actor{UserID: "owner-9"}, TransitionRequest{
		EntityType: EntityTypeContract,
		EntityID:   "999",
		Trigger:    TriggerSubmitForReview,
	})
	// After the reload the instance sits at legal_review, where
	// submit_for_review has no edge.
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition after reload, got %v", err)
	}
	if finds != 2 {
		t.Fatalf("expected exactly one reload, finds=%d", finds)
	}
}

func TestTransitionConflictIsNotRetried(t *testing.T) {
	store := newMemStore()
	store.seed(Instance{
		ID:           "inst-9",
		EntityType:   EntityTypeContract,
		EntityID:     "9",
		CurrentState: StateLegalReview,
	})
	auth := &stubAuthorizer{perms: permsFor(map[string][]string{
		"reviewer-1": {authz.PermContractReview},
	})}
	engine := newTestEngine(t, store, auth)

	applies := 0
	store.applyHook = func(ApplyRequest) error {
		applies++
		return fmt.Errorf("%w: state moved", ErrConflict)
	}

	_, err := engine.Transition(context.Background(), authz.Actor{UserID: "reviewer-1"}, TransitionRequest{
		EntityType: EntityTypeContract, EntityID: "9", Trigger: TriggerApproveLegal,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if applies != 1 {
		t.Fatalf("compare-and-set conflicts must not be retried, applies=%d", applies)
	}
}

func TestDescribeIsIdempotentAndFiltered(t *testing.T) {
	store := newMemStore()
	store.seed(Instance{
		ID:           "inst-9",
		EntityType:   EntityTypeContract,
		EntityID:     "9",
		CurrentState: StateLegalReview,
		OwnerID:      "owner-1",
	})
	auth := &stubAuthorizer{perms: permsFor(map[string][]string{
		"reviewer-1": {authz.PermContractReview},
		"owner-1":    {authz.PermContractSubmit},
	})}
	engine := newTestEngine(t, store, auth)

	first, err := engine.Describe(context.Background(), authz.Actor{UserID: "reviewer-1"}, EntityTypeContract, "9")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	second, err := engine.Describe(context.Background(), authz.Actor{UserID: "reviewer-1"}, EntityTypeContract, "9")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("describe not idempotent:\n%+v\n%+v", first, second)
	}
	if !first.Exists || first.State != StateLegalReview {
		t.Fatalf("unexpected description: %+v", first)
	}
	if !reflect.DeepEqual(first.Triggers, []string{TriggerApproveLegal, TriggerRequestChanges}) {
		t.Fatalf("reviewer triggers wrong: %v", first.Triggers)
	}

	// The owner holds only :own submit, which has no edge here.
	ownerView, err := engine.Describe(context.Background(), authz.Actor{UserID: "owner-1"}, EntityTypeContract, "9")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if len(ownerView.Triggers) != 0 {
		t.Fatalf("owner triggers wrong: %v", ownerView.Triggers)
	}
}

func TestDescribeAbsentInstance(t *testing.T) {
	auth := &stubAuthorizer{perms: permsFor(map[string][]string{
		"owner-1": {authz.PermContractSubmit},
		"other":   {authz.PermContractSubmit},
	})}
	engine := newTestEngine(t, newMemStore(), auth)

	desc, err := engine.Describe(context.Background(), authz.Actor{UserID: "owner-1"}, EntityTypeContract, "new-1")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if desc.Exists || desc.State != StateDraft {
		t.Fatalf("absent instance must describe the initial state: %+v", desc)
	}
	if !reflect.DeepEqual(desc.Triggers, []string{TriggerSubmitForReview}) {
		t.Fatalf("initial-state triggers wrong: %v", desc.Triggers)
	}
}

func TestDescribeFailsClosedOnResolverError(t *testing.T) {
	store := newMemStore()
	store.seed(Instance{
		ID: "inst-9", EntityType: EntityTypeContract, EntityID: "9", CurrentState: StateLegalReview,
	})
	engine := newTestEngine(t, store, &stubAuthorizer{resolveErr: errors.New("pg down")})

	desc, err := engine.Describe(context.Background(), authz.Actor{UserID: "reviewer-1"}, EntityTypeContract, "9")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if len(desc.Triggers) != 0 {
		t.Fatalf("unresolvable permissions must yield no triggers: %v", desc.Triggers)
	}
}

func TestHistoryVerifiesReplay(t *testing.T) {
	store := newMemStore()
	auth := &stubAuthorizer{perms: permsFor(map[string][]string{
		"owner-9":  {authz.PermContractSubmit, authz.PermWorkflowRead},
		"reviewer": {authz.PermContractReview},
	})}
	engine := newTestEngine(t, store, auth)

	actorOwner := authz.Actor{UserID: "owner-9"}
	if _, err := engine.Transition(context.Background(), actorOwner, TransitionRequest{
		EntityType: EntityTypeContract, EntityID: "42", Trigger: TriggerSubmitForReview,
	}); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if _, err := engine.Transition(context.Background(), authz.Actor{UserID: "reviewer"}, TransitionRequest{
		EntityType: EntityTypeContract, EntityID: "42", Trigger: TriggerApproveLegal,
	}); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	events, err := engine.History(context.Background(), actorOwner, EntityTypeContract, "42")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(events) != 2 || events[0].Trigger != TriggerSubmitForReview || events[1].Trigger != TriggerApproveLegal {
		t.Fatalf("unexpected ledger: %+v", events)
	}

	// Reading history requires the read permission.
	if _, err := engine.History(context.Background(), authz.Actor{UserID: "reviewer"}, EntityTypeContract, "42"); !errors.Is(err, authz.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := engine.History(context.Background(), actorOwner, EntityTypeContract, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHistoryDetectsCorruptLedger(t *testing.T) {
	store := newMemStore()
	store.seed(Instance{
		ID:           "inst-42",
		EntityType:   EntityTypeContract,
		EntityID:     "42",
		CurrentState: StateHRReview,
	})
	store.events["inst-42"] = []Event{
		{ID: "e1", InstanceID: "inst-42", FromState: StateDraft, ToState: StateLegalReview, Trigger: TriggerSubmitForReview},
		// Missing approve_legal event: replay stops at legal_review.
	}
	auth := &stubAuthorizer{perms: permsFor(map[string][]string{
		"auditor": {authz.PermWorkflowRead},
	})}
	engine := newTestEngine(t, store, auth)

	if _, err := engine.History(context.Background(), authz.Actor{UserID: "auditor"}, EntityTypeContract, "42"); err == nil {
		t.Fatalf("expected replay verification failure")
	}
}

func TestTransitionUnregisteredGuardFails(t *testing.T) {
	// A registry assembled without the guard predicates its definitions name
	// must fail the transition, not panic on a nil guard func.
	def := ContractDefinition()
	if err := def.compile(ContractGuards()); err != nil {
		t.Fatalf("compile: %v", err)
	}
	reg := &Registry{
		definitions: map[string]*Definition{EntityTypeContract: &def},
		guards:      map[string]GuardFunc{},
	}

	store := newMemStore()
	store.seed(Instance{
		ID:           "inst-123",
		EntityType:   EntityTypeContract,
		EntityID:     "123",
		CurrentState: StateSignature,
		OwnerID:      "owner-1",
		StartedAt:    time.Now().UTC(),
	})
	auth := &stubAuthorizer{perms: permsFor(map[string][]string{
		"signer-a": {authz.PermContractSign},
	})}
	engine, err := NewEngine(reg, auth, store)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	_, err = engine.Transition(context.Background(), authz.Actor{UserID: "signer-a"}, TransitionRequest{
		EntityType: EntityTypeContract,
		EntityID:   "123",
		Trigger:    TriggerSign,
	})
	if err == nil {
		t.Fatalf("expected error for missing guard")
	}
	if errors.Is(err, ErrGuardRejected) {
		t.Fatalf("missing guard is an internal failure, not a rejection: %v", err)
	}
	if got := store.instance(t, EntityTypeContract, "123").CurrentState; got != StateSignature {
		t.Fatalf("state mutated on internal failure: %q", got)
	}
}
