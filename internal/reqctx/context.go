package reqctx

import "context"

type ctxKey string

const (
	keyRID   ctxKey = "rid"
	keyActor ctxKey = "actor"
)

// WithRID stores the request correlation id used in logs.
func WithRID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, keyRID, rid)
}

// RID returns correlation id if present.
func RID(ctx context.Context) string {
	v, _ := ctx.Value(keyRID).(string)
	return v
}

// WithActor stores the authenticated caller.
func WithActor(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, keyActor, uid)
}

// Actor returns the authenticated caller if present.
func Actor(ctx context.Context) string {
	v, _ := ctx.Value(keyActor).(string)
	return v
}
