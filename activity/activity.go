package activity

import (
	"context"
)

// Request carries everything an activity may see for one attempt.
// Activities should be idempotent per (ExecutionId, NodeId, Attempt):
// the runner may re-invoke an attempt whose outcome was never durably
// recorded.
type Request struct {
	ExecutionId string
	NodeId      string
	Attempt     int
	Config      map[string]any
	State       map[string]any
}

// Activity is the sole boundary node-type plugins implement. The engine
// treats it as opaque, possibly slow and possibly failing; retryability
// is classified by the activity through its Result, never inferred by
// the engine.
type Activity interface {
	Name() string
	Execute(ctx context.Context, req Request) Result
}
