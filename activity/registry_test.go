package activity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistryBuiltins(t *testing.T) {
	r := NewRegistry()
	for _, nodeType := range []string{"noop", "branch", "script", "map", "wait"} {
		require.True(t, r.Known(nodeType), nodeType)
	}
	require.False(t, r.Known("http-call"))
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	require.Error(t, r.Register("noop", &noopActivity{}))
}

func TestInvokeUnknownTypeIsFatal(t *testing.T) {
	r := NewRegistry()
	result := r.Invoke(context.Background(), "missing", Request{})
	require.Equal(t, RESULT_FATAL, result.Kind)
	require.Error(t, result.Err)
}

func TestScriptActivity(t *testing.T) {
	scenarios := map[string]struct {
		config   map[string]any
		state    map[string]any
		kind     ResultKind
		expected map[string]any
	}{
		"transforms state": {
			config:   map[string]any{"expression": "$.total = $.price * $.qty;"},
			state:    map[string]any{"price": 4, "qty": 3},
			kind:     RESULT_SUCCESS,
			expected: map[string]any{"price": float64(4), "qty": float64(3), "total": float64(12)},
		},
		"missing expression": {
			config: map[string]any{},
			kind:   RESULT_FATAL,
		},
		"broken expression": {
			config: map[string]any{"expression": "$.x ="},
			kind:   RESULT_FATAL,
		},
		"scalar result rejected": {
			config: map[string]any{"expression": "$ = 42;"},
			kind:   RESULT_FATAL,
		},
	}
	a := &scriptActivity{}
	for name, sc := range scenarios {
		t.Run(name, func(t *testing.T) {
			result := a.Execute(context.Background(), Request{Config: sc.config, State: sc.state})
			require.Equal(t, sc.kind, result.Kind)
			if sc.expected != nil {
				require.Equal(t, sc.expected, result.Outputs)
			}
		})
	}
}

func TestMapActivity(t *testing.T) {
	a := &mapActivity{}

	result := a.Execute(context.Background(), Request{Config: map[string]any{
		"mapping": map[string]any{"customer": "alice", "total": 12},
	}})
	require.Equal(t, RESULT_SUCCESS, result.Kind)
	require.Equal(t, map[string]any{"customer": "alice", "total": 12}, result.Outputs)

	result = a.Execute(context.Background(), Request{Config: map[string]any{}})
	require.Equal(t, RESULT_FATAL, result.Kind)
}

func TestWaitActivity(t *testing.T) {
	a := &waitActivity{}

	result := a.Execute(context.Background(), Request{Config: map[string]any{
		"signal":         "approval",
		"timeoutSeconds": float64(90),
	}})
	require.Equal(t, RESULT_AWAIT_SIGNAL, result.Kind)
	require.Equal(t, "approval", result.SignalType)
	require.Equal(t, 90*time.Second, result.Timeout)

	result = a.Execute(context.Background(), Request{Config: map[string]any{"signal": "approval"}})
	require.Equal(t, DEFAULT_WAIT_TIMEOUT, result.Timeout)

	result = a.Execute(context.Background(), Request{Config: map[string]any{}})
	require.Equal(t, RESULT_FATAL, result.Kind)
}
