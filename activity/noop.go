package activity

import "context"

var _ Activity = new(noopActivity)

type noopActivity struct{}

func (a *noopActivity) Name() string {
	return "noop"
}

func (a *noopActivity) Execute(ctx context.Context, req Request) Result {
	return Success(nil)
}

var _ Activity = new(branchActivity)

// branchActivity produces no outputs of its own; edge selection on the
// node's outgoing predicates is done by the runner after it completes.
type branchActivity struct{}

func (a *branchActivity) Name() string {
	return "branch"
}

func (a *branchActivity) Execute(ctx context.Context, req Request) Result {
	return Success(nil)
}
