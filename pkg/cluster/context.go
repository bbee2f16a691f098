package cluster

import "context"

type retriesDisabledKey struct{}

// WithRetriesDisabled marks ctx so a Client implementation knows to skip
// its own internal retry wrapper around the call: retrying list/create
// calls is this module's job, not the client's.
func WithRetriesDisabled(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriesDisabledKey{}, true)
}

// RetriesDisabled reports whether WithRetriesDisabled was set on ctx.
func RetriesDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(retriesDisabledKey{}).(bool)
	return v
}
