package runtime

import (
	"context"
)

// Handler defines a lifecycle-aware Lambda handler for input type T and output type R.
//
// ColdStart runs once before the first invocation. Validate rejects events
// that cannot be processed at all; its error is posted to the Runtime API as a
// ValidationError and Handler is not called. Shutdown runs when the runtime
// receives SIGTERM or SIGINT.
type Handler[T, R any] interface {
	ColdStart(ctx context.Context) error
	Validate(ctx context.Context, event T) error
	Handler(ctx context.Context, event T) (R, error)
	Shutdown(ctx context.Context) error
}
