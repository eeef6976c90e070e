package activity

import (
	"context"
	"fmt"
	"time"
)

const DEFAULT_WAIT_TIMEOUT = 24 * time.Hour

var _ Activity = new(waitActivity)

// waitActivity parks the execution until a signal of the configured type
// arrives or the timeout elapses.
type waitActivity struct{}

func (a *waitActivity) Name() string {
	return "wait"
}

func (a *waitActivity) Execute(ctx context.Context, req Request) Result {
	signalType, ok := req.Config["signal"].(string)
	if !ok || len(signalType) == 0 {
		return Fatal(fmt.Errorf("wait node requires a signal type"))
	}
	timeout := DEFAULT_WAIT_TIMEOUT
	if seconds, ok := req.Config["timeoutSeconds"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}
	return AwaitSignal(signalType, timeout)
}
