package authz

import (
	"context"
	"strings"
)

type ctxKey string

const actorKey ctxKey = "authz_actor"

// ContextWithActor stores the verified actor in the context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	actor.UserID = strings.TrimSpace(actor.UserID)
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext extracts the authenticated actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	if !ok || !actor.Authenticated() {
		return Actor{}, false
	}
	return actor, true
}
