package definition

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/flowmill/flowmill/activity"
	"github.com/flowmill/flowmill/model"
	"github.com/flowmill/flowmill/persistence"
	"github.com/google/uuid"
	c "github.com/patrickmn/go-cache"
	"github.com/robfig/cron/v3"
)

// InvalidGraphError rejects a definition at write time; an invalid graph
// never reaches the runner.
type InvalidGraphError struct {
	Reason string
}

func (e InvalidGraphError) Error() string {
	return fmt.Sprintf("invalid graph: %s", e.Reason)
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Service is the graph store. Definition versions are immutable, so the
// read cache is never invalidated.
type Service struct {
	storage  persistence.DefinitionStorage
	registry *activity.Registry
	cache    *c.Cache
}

func NewService(storage persistence.DefinitionStorage, registry *activity.Registry) *Service {
	return &Service{
		storage:  storage,
		registry: registry,
		cache:    c.New(c.NoExpiration, 10*time.Minute),
	}
}

// Create validates and stores version 1 of a new workflow.
func (s *Service) Create(wf model.WorkflowDefinition) (string, error) {
	if err := s.Validate(wf); err != nil {
		return "", err
	}
	if len(wf.WorkflowId) == 0 {
		wf.WorkflowId = uuid.New().String()
	}
	wf.Version = 1
	if err := s.storage.Save(wf); err != nil {
		return "", err
	}
	return wf.WorkflowId, nil
}

// Update validates and stores the next version of an existing workflow.
func (s *Service) Update(workflowId string, wf model.WorkflowDefinition) (int, error) {
	wf.WorkflowId = workflowId
	if err := s.Validate(wf); err != nil {
		return 0, err
	}
	latest, err := s.storage.LatestVersion(workflowId)
	if err != nil {
		return 0, err
	}
	wf.Version = latest + 1
	if err := s.storage.Save(wf); err != nil {
		return 0, err
	}
	return wf.Version, nil
}

func (s *Service) Get(workflowId string, version int) (*model.WorkflowDefinition, error) {
	key := fmt.Sprintf("%s:%d", workflowId, version)
	if cached, found := s.cache.Get(key); found {
		return cached.(*model.WorkflowDefinition), nil
	}
	wf, err := s.storage.Get(workflowId, version)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, wf, c.NoExpiration)
	return wf, nil
}

func (s *Service) Latest(workflowId string) (*model.WorkflowDefinition, error) {
	version, err := s.storage.LatestVersion(workflowId)
	if err != nil {
		return nil, err
	}
	return s.Get(workflowId, version)
}

func (s *Service) LatestVersion(workflowId string) (int, error) {
	return s.storage.LatestVersion(workflowId)
}

// Validate enforces the structural invariants: every edge endpoint
// references a node in the same version, exactly one entry node, all
// node types known to the activity registry, predicates compile, cron
// triggers parse. A node with several outgoing edges must carry a
// predicate or the default marker on each, so every edge is reachable
// by runtime selection. Cycles are legal; the runner's step ceiling
// bounds them.
func (s *Service) Validate(wf model.WorkflowDefinition) error {
	if len(wf.Nodes) == 0 {
		return InvalidGraphError{Reason: "workflow has no nodes"}
	}
	nodeIds := make(map[string]bool, len(wf.Nodes))
	for _, node := range wf.Nodes {
		if len(node.Id) == 0 {
			return InvalidGraphError{Reason: "node id can not be empty"}
		}
		if nodeIds[node.Id] {
			return InvalidGraphError{Reason: fmt.Sprintf("node id %s is duplicate", node.Id)}
		}
		nodeIds[node.Id] = true
		if !s.registry.Known(node.Type) {
			return InvalidGraphError{Reason: fmt.Sprintf("node %s has unknown type %s", node.Id, node.Type)}
		}
		if node.MaxRetries < 0 {
			return InvalidGraphError{Reason: fmt.Sprintf("node %s has negative maxRetries", node.Id)}
		}
	}
	if len(wf.Entry) == 0 {
		return InvalidGraphError{Reason: "workflow has no entry node"}
	}
	if !nodeIds[wf.Entry] {
		return InvalidGraphError{Reason: fmt.Sprintf("entry node %s not defined", wf.Entry)}
	}
	outgoing := make(map[string]int)
	for _, edge := range wf.Edges {
		outgoing[edge.From]++
	}
	defaults := make(map[string]int)
	for _, edge := range wf.Edges {
		if !nodeIds[edge.From] {
			return InvalidGraphError{Reason: fmt.Sprintf("edge references missing node %s", edge.From)}
		}
		if !nodeIds[edge.To] {
			return InvalidGraphError{Reason: fmt.Sprintf("edge references missing node %s", edge.To)}
		}
		if outgoing[edge.From] > 1 && len(edge.When) == 0 && !edge.Default {
			return InvalidGraphError{Reason: fmt.Sprintf("node %s has multiple outgoing edges, edge to %s needs a predicate or the default marker", edge.From, edge.To)}
		}
		if len(edge.When) > 0 {
			if _, err := goja.Compile("", edge.When, false); err != nil {
				return InvalidGraphError{Reason: fmt.Sprintf("edge %s->%s has invalid predicate: %v", edge.From, edge.To, err)}
			}
		}
		if edge.Default {
			defaults[edge.From]++
			if defaults[edge.From] > 1 {
				return InvalidGraphError{Reason: fmt.Sprintf("node %s has multiple default edges", edge.From)}
			}
		}
	}
	switch wf.Trigger.Type {
	case model.TRIGGER_TYPE_MANUAL:
	case model.TRIGGER_TYPE_CRON:
		if _, err := cronParser.Parse(wf.Trigger.Cron); err != nil {
			return InvalidGraphError{Reason: fmt.Sprintf("invalid cron expression %s: %v", wf.Trigger.Cron, err)}
		}
	default:
		return InvalidGraphError{Reason: fmt.Sprintf("invalid trigger type %s", wf.Trigger.Type)}
	}
	return nil
}

// CronParser returns the parser used for trigger validation so the cron
// sweep computes occurrences with identical semantics.
func CronParser() cron.Parser {
	return cronParser
}
