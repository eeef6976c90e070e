package model

type TriggerType string

const TRIGGER_TYPE_MANUAL TriggerType = "manual"
const TRIGGER_TYPE_CRON TriggerType = "cron"

type TriggerConfig struct {
	Type TriggerType `json:"type"`
	Cron string      `json:"cron,omitempty"`
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// WorkflowNode is one step of the graph. Config is an opaque document
// handed to the node's activity after interpolation against execution
// state.
type WorkflowNode struct {
	Id         string         `json:"id"`
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Position   Position       `json:"position"`
	Config     map[string]any `json:"config"`
	MaxRetries int            `json:"maxRetries"`
}

// WorkflowEdge connects two nodes. When is a boolean expression over the
// merged execution state evaluated during branch selection; empty means
// unconditional. At most one Default edge per node is taken when no
// predicate matches.
type WorkflowEdge struct {
	From    string `json:"from"`
	To      string `json:"to"`
	When    string `json:"when,omitempty"`
	Default bool   `json:"default,omitempty"`
}

// WorkflowDefinition is an immutable versioned graph. Structural edits
// produce a new version; running executions stay pinned to the version
// they started with.
type WorkflowDefinition struct {
	WorkflowId string         `json:"workflowId"`
	OwnerId    string         `json:"ownerId"`
	Name       string         `json:"name"`
	Version    int            `json:"version"`
	Nodes      []WorkflowNode `json:"nodes"`
	Edges      []WorkflowEdge `json:"edges"`
	Entry      string         `json:"entry"`
	Trigger    TriggerConfig  `json:"trigger"`
}

func (wf *WorkflowDefinition) Node(id string) (WorkflowNode, bool) {
	for _, n := range wf.Nodes {
		if n.Id == id {
			return n, true
		}
	}
	return WorkflowNode{}, false
}

// OutgoingEdges returns edges leaving the node in definition order.
func (wf *WorkflowDefinition) OutgoingEdges(nodeId string) []WorkflowEdge {
	var out []WorkflowEdge
	for _, e := range wf.Edges {
		if e.From == nodeId {
			out = append(out, e)
		}
	}
	return out
}
