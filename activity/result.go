package activity

import "time"

type ResultKind int

const RESULT_SUCCESS ResultKind = 1
const RESULT_RETRYABLE ResultKind = 2
const RESULT_FATAL ResultKind = 3
const RESULT_AWAIT_SIGNAL ResultKind = 4

// Result is the closed set of activity outcomes. New node types register
// a new Activity, never a new Result variant.
type Result struct {
	Kind       ResultKind
	Outputs    map[string]any
	Err        error
	SignalType string
	Timeout    time.Duration
}

func Success(outputs map[string]any) Result {
	return Result{Kind: RESULT_SUCCESS, Outputs: outputs}
}

func Retryable(err error) Result {
	return Result{Kind: RESULT_RETRYABLE, Err: err}
}

func Fatal(err error) Result {
	return Result{Kind: RESULT_FATAL, Err: err}
}

func AwaitSignal(signalType string, timeout time.Duration) Result {
	return Result{Kind: RESULT_AWAIT_SIGNAL, SignalType: signalType, Timeout: timeout}
}
