package engine

import (
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
	"github.com/flowmill/flowmill/model"
)

// selectNextNode picks the outgoing edge to follow after a node
// completes. Predicates are evaluated in definition order against $
// bound to the merged execution state; the first true predicate wins,
// then the default edge, then ErrNoMatchingEdge. A single unconditional
// edge is followed directly; no outgoing edge means the execution is
// complete.
func selectNextNode(wf *model.WorkflowDefinition, nodeId string, state map[string]any) (string, bool, error) {
	edges := wf.OutgoingEdges(nodeId)
	if len(edges) == 0 {
		return "", false, nil
	}
	var defaultEdge *model.WorkflowEdge
	var conditional bool
	for i := range edges {
		if len(edges[i].When) > 0 {
			conditional = true
		}
		if edges[i].Default {
			defaultEdge = &edges[i]
		}
	}
	if !conditional && defaultEdge == nil {
		return edges[0].To, true, nil
	}
	for _, edge := range edges {
		if len(edge.When) == 0 {
			continue
		}
		match, err := evalPredicate(edge.When, state)
		if err != nil {
			return "", false, fmt.Errorf("error evaluating predicate on edge %s->%s: %w", edge.From, edge.To, err)
		}
		if match {
			return edge.To, true, nil
		}
	}
	if defaultEdge != nil {
		return defaultEdge.To, true, nil
	}
	return "", false, ErrNoMatchingEdge
}

func evalPredicate(expression string, state map[string]any) (bool, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return false, err
	}
	vm := goja.New()
	script := fmt.Sprintf("var $ = %s;\n(%s)", data, expression)
	val, err := vm.RunString(script)
	if err != nil {
		return false, err
	}
	return val.ToBoolean(), nil
}
