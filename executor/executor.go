package executor

// Executor is one scheduler sweep running on its own poll cadence.
// A sweep failure is logged and retried on the next tick; sweeps never
// block each other.
type Executor interface {
	Start()
	Stop()
}
