package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"contractdesk.org/internal/audit"
	"contractdesk.org/internal/authz"
	"contractdesk.org/internal/ids"
	"contractdesk.org/internal/obs"
	"contractdesk.org/internal/stream"
)

// Authorizer is the permission check consumed by the engine. *authz.Guard
// satisfies it.
type Authorizer interface {
	Check(ctx context.Context, actor authz.Actor, permission string) (authz.Decision, error)
	RequirePermission(ctx context.Context, actor authz.Actor, permission string) error
}

// TransitionRequest asks the engine to drive one entity through one edge.
// DueAt is applied only when the instance is created lazily by this call.
type TransitionRequest struct {
	EntityType string
	EntityID   string
	Trigger    string
	Comment    string
	DueAt      *time.Time
}

// TransitionResult reports a committed transition.
type TransitionResult struct {
	InstanceID string `json:"instance_id"`
	FromState  string `json:"from_state"`
	ToState    string `json:"to_state"`
	EventID    string `json:"event_id"`
	Created    bool   `json:"created"`
}

// Description answers the read query: where an entity stands and which
// triggers the requesting actor could fire from there. An entity with no
// instance yet is described at the definition's initial state.
type Description struct {
	EntityType string     `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	State      string     `json:"state"`
	Exists     bool       `json:"exists"`
	Terminal   bool       `json:"terminal"`
	Triggers   []string   `json:"triggers"`
	DueAt      *time.Time `json:"due_at,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// Engine drives entities through their registered lifecycles. It is the only
// component that mutates instance state.
type Engine struct {
	registry *Registry
	guard    Authorizer
	store    Store
	events   *stream.Stream
	now      func() time.Time
	newID    func() string
}

// EngineOption configures Engine behavior.
type EngineOption func(*Engine)

// WithEngineClock overrides the time source (useful for tests).
func WithEngineClock(fn func() time.Time) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}

// WithIDGenerator overrides instance/event id generation.
func WithIDGenerator(fn func() string) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// WithStream attaches the post-commit transition broadcaster.
func WithStream(s *stream.Stream) EngineOption {
	return func(e *Engine) {
		e.events = s
	}
}

// NewEngine constructs the engine.
func NewEngine(registry *Registry, guard Authorizer, store Store, opts ...EngineOption) (*Engine, error) {
	if registry == nil {
		return nil, errors.New("workflow: registry is required")
	}
	if guard == nil {
		return nil, errors.New("workflow: authorizer is required")
	}
	if store == nil {
		return nil, errors.New("workflow: store is required")
	}
	e := &Engine{
		registry: registry,
		guard:    guard,
		store:    store,
		now:      time.Now,
		newID:    ids.New,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Transition applies one trigger to one entity. The instance is created
// lazily at the definition's initial state inside the same transaction that
// applies the edge, so no instance is ever observable at the initial state
// without having processed its first trigger.
//
// Concurrent transitions on the same instance race on a compare-and-set
// update; the loser receives ErrConflict and is never retried internally. A
// lost creation race is the one exception: the winner's instance already
// exists, so the loser reloads it and re-evaluates once against the state it
// now observes.
func (e *Engine) Transition(ctx context.Context, actor authz.Actor, req TransitionRequest) (TransitionResult, error) {
	req.EntityType = strings.TrimSpace(req.EntityType)
	req.EntityID = strings.TrimSpace(req.EntityID)
	req.Trigger = strings.TrimSpace(req.Trigger)
	if req.EntityType == "" || req.EntityID == "" || req.Trigger == "" {
		return TransitionResult{}, fmt.Errorf("%w: entity_type, entity_id and trigger are required", ErrInvalidInput)
	}

	def, err := e.registry.Lookup(req.EntityType)
	if err != nil {
		e.observe(req, "not_found")
		return TransitionResult{}, err
	}

	result, err := e.attempt(ctx, actor, def, req, true)
	if err != nil {
		e.observe(req, outcomeOf(err))
		return TransitionResult{}, err
	}
	e.observe(req, "applied")
	e.publish(ctx, actor, req, result)
	return result, nil
}

// attempt runs steps 2-6 of the transition once. allowCreateRetry permits a
// single reload after a lost creation race.
func (e *Engine) attempt(ctx context.Context, actor authz.Actor, def *Definition, req TransitionRequest, allowCreateRetry bool) (TransitionResult, error) {
	now := e.now().UTC()

	instance, err := e.store.FindInstance(ctx, req.EntityType, req.EntityID)
	created := false
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		created = true
		instance = Instance{
			ID:           e.newID(),
			EntityType:   req.EntityType,
			EntityID:     req.EntityID,
			CurrentState: def.InitialState,
			OwnerID:      actor.UserID,
			DueAt:        req.DueAt,
			StartedAt:    now,
			UpdatedAt:    now,
		}
	default:
		return TransitionResult{}, fmt.Errorf("load instance %s/%s: %w", req.EntityType, req.EntityID, err)
	}

	edge, ok := def.FindTransition(instance.CurrentState, req.Trigger)
	if !ok {
		return TransitionResult{}, fmt.Errorf("%w: no edge from %q via %q", ErrInvalidTransition, instance.CurrentState, req.Trigger)
	}

	if err := e.authorize(ctx, actor, edge, instance); err != nil {
		return TransitionResult{}, err
	}

	if edge.Guard != "" {
		fn, ok := e.registry.Guard(edge.Guard)
		if !ok {
			return TransitionResult{}, fmt.Errorf("guard %q is not registered for %s", edge.Guard, def.EntityType)
		}
		if err := fn(ctx, instance, now); err != nil {
			return TransitionResult{}, fmt.Errorf("%w: %v", ErrGuardRejected, err)
		}
	}

	fromState := instance.CurrentState
	next := instance
	next.CurrentState = edge.To
	next.UpdatedAt = now
	event := Event{
		ID:          e.newID(),
		InstanceID:  next.ID,
		FromState:   fromState,
		ToState:     edge.To,
		Trigger:     edge.Trigger,
		TriggeredBy: actor.UserID,
		Comment:     strings.TrimSpace(req.Comment),
		CreatedAt:   now,
	}

	applied, err := e.store.Apply(ctx, ApplyRequest{
		Instance:  next,
		Create:    created,
		FromState: fromState,
		Event:     event,
	})
	if err != nil {
		if created && allowCreateRetry && errors.Is(err, ErrConflict) {
			// Lost the creation race: the instance exists now. Re-evaluate
			// against it; a further conflict surfaces to the caller.
			return e.attempt(ctx, actor, def, req, false)
		}
		return TransitionResult{}, err
	}

	return TransitionResult{
		InstanceID: applied.ID,
		FromState:  fromState,
		ToState:    applied.CurrentState,
		EventID:    event.ID,
		Created:    created,
	}, nil
}

// authorize runs the two-phase check for the edge: capability first, then
// ownership for :own-scoped permissions. A lazily created instance belongs
// to the actor creating it.
func (e *Engine) authorize(ctx context.Context, actor authz.Actor, edge Transition, instance Instance) error {
	if err := e.guard.RequirePermission(ctx, actor, edge.Permission); err != nil {
		return err
	}
	perm, err := authz.ParsePermission(edge.Permission)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if perm.Scope == authz.ScopeOwn && instance.OwnerID != actor.UserID {
		return fmt.Errorf("%w: %s requires ownership of %s/%s", authz.ErrForbidden, edge.Permission, instance.EntityType, instance.EntityID)
	}
	return nil
}

// Describe answers the idempotent read query. Triggers are limited to the
// edges whose permission the actor's effective set satisfies, honouring the
// ownership half of :own scopes; an unresolvable permission set fails closed
// to an empty trigger list.
func (e *Engine) Describe(ctx context.Context, actor authz.Actor, entityType, entityID string) (Description, error) {
	entityType = strings.TrimSpace(entityType)
	entityID = strings.TrimSpace(entityID)
	if entityType == "" || entityID == "" {
		return Description{}, fmt.Errorf("%w: entity_type and entity_id are required", ErrInvalidInput)
	}
	def, err := e.registry.Lookup(entityType)
	if err != nil {
		return Description{}, err
	}

	desc := Description{
		EntityType: entityType,
		EntityID:   entityID,
		State:      def.InitialState,
	}
	instance, err := e.store.FindInstance(ctx, entityType, entityID)
	switch {
	case err == nil:
		desc.Exists = true
		desc.State = instance.CurrentState
		desc.DueAt = instance.DueAt
		updated := instance.UpdatedAt
		desc.UpdatedAt = &updated
	case errors.Is(err, ErrNotFound):
		// Described at the initial state; the first valid trigger will
		// create the instance.
		instance = Instance{
			EntityType:   entityType,
			EntityID:     entityID,
			CurrentState: def.InitialState,
			OwnerID:      actor.UserID,
		}
	default:
		return Description{}, fmt.Errorf("load instance %s/%s: %w", entityType, entityID, err)
	}
	desc.Terminal = def.Terminal(desc.State)

	desc.Triggers = make([]string, 0, 4)
	for _, edge := range def.TransitionsFrom(desc.State) {
		decision, err := e.guard.Check(ctx, actor, edge.Permission)
		if err != nil || !decision.Allowed {
			continue
		}
		perm, err := authz.ParsePermission(edge.Permission)
		if err != nil {
			continue
		}
		if perm.Scope == authz.ScopeOwn && instance.OwnerID != actor.UserID {
			continue
		}
		desc.Triggers = append(desc.Triggers, edge.Trigger)
	}
	return desc, nil
}

// History returns the instance's full transition ledger and verifies the
// replay invariant before handing it out.
func (e *Engine) History(ctx context.Context, actor authz.Actor, entityType, entityID string) ([]Event, error) {
	entityType = strings.TrimSpace(entityType)
	entityID = strings.TrimSpace(entityID)
	if entityType == "" || entityID == "" {
		return nil, fmt.Errorf("%w: entity_type and entity_id are required", ErrInvalidInput)
	}
	if err := e.guard.RequirePermission(ctx, actor, authz.PermWorkflowRead); err != nil {
		return nil, err
	}
	def, err := e.registry.Lookup(entityType)
	if err != nil {
		return nil, err
	}
	instance, err := e.store.FindInstance(ctx, entityType, entityID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: no instance for %s/%s", ErrNotFound, entityType, entityID)
		}
		return nil, fmt.Errorf("load instance %s/%s: %w", entityType, entityID, err)
	}
	events, err := e.store.Events(ctx, instance.ID)
	if err != nil {
		return nil, fmt.Errorf("load events for %s: %w", instance.ID, err)
	}
	if err := VerifyHistory(def, instance, events); err != nil {
		obs.LogError("event ledger does not replay to current state", err, map[string]any{
			"entity_type": entityType,
			"entity_id":   entityID,
		})
		return nil, fmt.Errorf("verify history for %s/%s: %w", entityType, entityID, err)
	}
	return events, nil
}

// publish runs the best-effort post-commit step: audit entry plus fan-out to
// downstream mirrors. Failures are logged and never surfaced; the transition
// is already durable.
func (e *Engine) publish(ctx context.Context, actor authz.Actor, req TransitionRequest, result TransitionResult) {
	if err := audit.LogEvent(ctx, "workflow.transition", map[string]any{
		"entity_type": req.EntityType,
		"entity_id":   req.EntityID,
		"trigger":     req.Trigger,
		"from_state":  result.FromState,
		"to_state":    result.ToState,
		"event_id":    result.EventID,
		"created":     result.Created,
	}); err != nil {
		obs.LogError("audit log failed for committed transition", err, map[string]any{
			"event_id": result.EventID,
		})
	}
	if e.events == nil {
		return
	}
	e.events.Publish(stream.TransitionEvent{
		EventID:    result.EventID,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		FromState:  result.FromState,
		ToState:    result.ToState,
		Trigger:    req.Trigger,
		ActorID:    actor.UserID,
		OccurredAt: e.now().UTC(),
	})
}

func (e *Engine) observe(req TransitionRequest, outcome string) {
	obs.ObserveTransition(req.EntityType, req.Trigger, outcome)
}

// outcomeOf maps a transition error onto the stable metric label.
func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrGuardRejected):
		return "guard_rejected"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, authz.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, authz.ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidInput), errors.Is(err, authz.ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal"
	}
}
