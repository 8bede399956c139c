package common

import "context"

// ActorContext carries the authenticated caller's identity through a
// request, for audit attribution and review/admin auth gating.
type ActorContext struct {
	UserID string
	Role   string
}

type actorContextKey struct{}

// WithActorContext returns a new context carrying the given ActorContext.
func WithActorContext(ctx context.Context, actor ActorContext) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// GetActorContext extracts the ActorContext previously attached with
// WithActorContext. The second return value is false if none is present.
func GetActorContext(ctx context.Context) (ActorContext, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(ActorContext)
	return actor, ok
}

// ActorOrAnonymous returns the UserID of the request's actor, or
// "anonymous" when no actor context is present (e.g. unauthenticated
// screening calls).
func ActorOrAnonymous(ctx context.Context) string {
	actor, ok := GetActorContext(ctx)
	if !ok || actor.UserID == "" {
		return "anonymous"
	}
	return actor.UserID
}
