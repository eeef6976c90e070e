package model

import "time"

type ExecutionStatus string

const EXECUTION_PENDING ExecutionStatus = "pending"
const EXECUTION_RUNNING ExecutionStatus = "running"
const EXECUTION_WAITING_SIGNAL ExecutionStatus = "waiting_signal"
const EXECUTION_RETRY_SCHEDULED ExecutionStatus = "retry_scheduled"
const EXECUTION_COMPLETED ExecutionStatus = "completed"
const EXECUTION_FAILED ExecutionStatus = "failed"
const EXECUTION_CANCELLED ExecutionStatus = "cancelled"

func (s ExecutionStatus) Terminal() bool {
	return s == EXECUTION_COMPLETED || s == EXECUTION_FAILED || s == EXECUTION_CANCELLED
}

// WorkflowExecution is the durable record of one triggered run. It is
// mutated only by the runner, under the per-execution dispatch lock.
type WorkflowExecution struct {
	ExecutionId     string          `json:"executionId"`
	WorkflowId      string          `json:"workflowId"`
	Version         int             `json:"version"`
	OwnerId         string          `json:"ownerId"`
	Status          ExecutionStatus `json:"status"`
	CurrentNode     string          `json:"currentNode"`
	State           map[string]any  `json:"state"`
	RetryCount      int             `json:"retryCount"`
	StepCount       int             `json:"stepCount"`
	NextRetryAt     *time.Time      `json:"nextRetryAt,omitempty"`
	WaitSignal      string          `json:"waitSignal,omitempty"`
	WaitTimeoutAt   *time.Time      `json:"waitTimeoutAt,omitempty"`
	CancelRequested bool            `json:"cancelRequested,omitempty"`
	Error           string          `json:"error,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}
