package policy

import "context"

// RequestState is mutable per-request bookkeeping shared by the
// middleware chain. It lives for exactly one request.
type RequestState struct {
	// ActivityUpdated guards the request-driven profile updater: once
	// set, further update attempts within the same request are no-ops.
	ActivityUpdated bool
}

type stateKey struct{}

// WithRequestState attaches a fresh RequestState to the context.
func WithRequestState(ctx context.Context, state *RequestState) context.Context {
	return context.WithValue(ctx, stateKey{}, state)
}

// StateFromContext returns the request's state, or nil when none was
// attached.
func StateFromContext(ctx context.Context) *RequestState {
	state, _ := ctx.Value(stateKey{}).(*RequestState)
	return state
}
