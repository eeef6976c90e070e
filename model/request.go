package model

type WorkflowRunRequest struct {
	WorkflowId string         `json:"workflowId"`
	Input      map[string]any `json:"input"`
}

type SignalRequest struct {
	ExecutionId string         `json:"executionId"`
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload"`
}

type ScheduleRequest struct {
	WorkflowId string `json:"workflowId"`
	Cron       string `json:"cron"`
}

// DispatchRequest is one unit of runner work on the dispatch queue.
type DispatchRequest struct {
	ExecutionId string `json:"executionId"`
}
