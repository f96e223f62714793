package shared

import "context"

type actorContextKey struct{}

// Actor identifies the authenticated user behind a mutating request.
// Resolution happens upstream; the service only records the id.
type Actor struct {
	UserID int64
}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context, zero value when absent.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}
