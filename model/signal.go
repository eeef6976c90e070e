package model

import "time"

// WorkflowSignal is an externally delivered event addressed to one
// execution. Processed flips exactly once, atomically with resuming the
// target execution.
type WorkflowSignal struct {
	SignalId    string         `json:"signalId"`
	ExecutionId string         `json:"executionId"`
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload,omitempty"`
	Processed   bool           `json:"processed"`
	CreatedAt   time.Time      `json:"createdAt"`
}
