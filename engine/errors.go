package engine

import "errors"

// Distinguished failure kinds recorded on the execution. The engine
// never infers retryability from error content; activities classify
// their own failures.
var ErrSignalTimeout = errors.New("no matching signal arrived before the wait deadline")
var ErrStepCeiling = errors.New("execution exceeded the step ceiling")
var ErrNoMatchingEdge = errors.New("no outgoing edge matched and no default edge defined")
