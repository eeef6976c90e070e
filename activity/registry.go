package activity

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowmill/flowmill/logger"
	"go.uber.org/zap"
)

// Registry maps a node type to its Activity. It never owns execution
// state; the runner calls Invoke and applies the Result.
type Registry struct {
	mu         sync.RWMutex
	activities map[string]Activity
}

func NewRegistry() *Registry {
	r := &Registry{
		activities: make(map[string]Activity),
	}
	r.registerBuiltins()
	return r
}

func (r *Registry) registerBuiltins() {
	for _, a := range []Activity{
		&noopActivity{},
		&branchActivity{},
		&scriptActivity{},
		&mapActivity{},
		&waitActivity{},
	} {
		_ = r.Register(a.Name(), a)
	}
}

func (r *Registry) Register(nodeType string, a Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.activities[nodeType]; ok {
		return fmt.Errorf("activity for node type %s already registered", nodeType)
	}
	r.activities[nodeType] = a
	return nil
}

func (r *Registry) Known(nodeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.activities[nodeType]
	return ok
}

func (r *Registry) Invoke(ctx context.Context, nodeType string, req Request) Result {
	r.mu.RLock()
	a, ok := r.activities[nodeType]
	r.mu.RUnlock()
	if !ok {
		return Fatal(fmt.Errorf("no activity registered for node type %s", nodeType))
	}
	logger.Debug("invoking activity", zap.String("type", nodeType), zap.String("execution", req.ExecutionId), zap.String("node", req.NodeId), zap.Int("attempt", req.Attempt))
	return a.Execute(ctx, req)
}
