// Package auditctx carries the authenticated actor of a request down to the
// service layer so audit entries can be attributed without threading user IDs
// through every call.
package auditctx

import "context"

// Actor describes the reviewer or administrator behind a request.
type Actor struct {
	UserID    string
	Email     string
	Role      string
	IPAddress string
}

type actorContextKey struct{}

// WithActor returns a derived context carrying actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// FromContext extracts the actor stored by WithActor.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
