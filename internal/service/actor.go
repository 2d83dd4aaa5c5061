package service

import "context"

type actorKey struct{}

// WithActor tags ctx with the identity performing a mutation so service logs
// can attribute it.
func WithActor(ctx context.Context, actor string) context.Context {
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

// actorFrom returns the identity stored by WithActor, or "system" for
// background jobs and direct callers.
func actorFrom(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok {
		return actor
	}
	return "system"
}
