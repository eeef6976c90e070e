package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
)

var _ Activity = new(scriptActivity)

// scriptActivity runs the configured javascript with $ bound to the
// execution state and returns the exported $ as outputs.
type scriptActivity struct{}

func (a *scriptActivity) Name() string {
	return "script"
}

func (a *scriptActivity) Execute(ctx context.Context, req Request) Result {
	expression, ok := req.Config["expression"].(string)
	if !ok || len(expression) == 0 {
		return Fatal(fmt.Errorf("script node requires an expression"))
	}
	data, err := json.Marshal(req.State)
	if err != nil {
		return Fatal(err)
	}
	script := fmt.Sprintf("var $ = %s;\n%s", data, expression)
	vm := goja.New()
	_, err = vm.RunString(script)
	if err != nil {
		return Fatal(fmt.Errorf("error executing javascript %w", err))
	}
	val, err := vm.RunString("$")
	if err != nil {
		return Fatal(fmt.Errorf("error executing javascript %w", err))
	}
	res, err := json.Marshal(val.Export())
	if err != nil {
		return Fatal(err)
	}
	var outputs map[string]any
	if err := json.Unmarshal(res, &outputs); err != nil {
		return Fatal(fmt.Errorf("script must evaluate $ to an object: %w", err))
	}
	return Success(outputs)
}
