package activity

import (
	"context"
	"fmt"
)

var _ Activity = new(mapActivity)

// mapActivity projects values out of the execution state. The mapping
// config arrives already interpolated, so the activity only reshapes it
// into outputs.
type mapActivity struct{}

func (a *mapActivity) Name() string {
	return "map"
}

func (a *mapActivity) Execute(ctx context.Context, req Request) Result {
	mapping, ok := req.Config["mapping"].(map[string]any)
	if !ok {
		return Fatal(fmt.Errorf("map node requires a mapping object"))
	}
	outputs := make(map[string]any, len(mapping))
	for k, v := range mapping {
		outputs[k] = v
	}
	return Success(outputs)
}
