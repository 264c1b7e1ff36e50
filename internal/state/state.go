// Package state implements the reactive three-tier state manager (component C):
// inputs/state/computed tiers per WorkflowInstance, with dirty-subset topological
// recomputation of the computed DAG on every write (spec §3, §4.3).
package state

import (
	"strings"
	"sync"

	werrors "github.com/aroton/aromcp-workflow/internal/errors"
	"github.com/aroton/aromcp-workflow/internal/evaluator"
	"github.com/aroton/aromcp-workflow/internal/transform"
)

// Snapshot is the three-tier StateSnapshot of spec §3. Inputs are immutable after
// construction; State is mutable via ApplyStateUpdate/ApplyStateUpdates; Computed is
// never directly writable.
type Snapshot struct {
	mu       sync.Mutex
	inputs   map[string]any
	state    map[string]any
	computed map[string]any
	schema   *Schema
}

// New seeds a fresh Snapshot: inputs from the caller, state from the definition's
// default_state, then performs a full initial recomputation of every computed field so
// every field referenced downstream has a value from the moment the instance exists
// (spec §4.7 step 3 reuses this same constructor for sub-agent spawn).
func New(inputs, defaultState map[string]any, schema *Schema) (*Snapshot, error) {
	s := &Snapshot{
		inputs:   cloneMap(inputs),
		state:    cloneMap(defaultState),
		computed: make(map[string]any),
		schema:   schema,
	}
	if err := s.recomputeAll(); err != nil {
		return nil, err
	}
	return s, nil
}

// Scope builds the read-only evaluator scope for expressions evaluated against this
// snapshot, merging in any extra (loop/foreach/subagent) bindings (spec §4.3 "Scopes").
func (s *Snapshot) Scope(extra map[string]any) evaluator.Scope {
	s.mu.Lock()
	defer s.mu.Unlock()

	scope := evaluator.Scope{
		"inputs":   s.inputs,
		"state":    s.state,
		"computed": s.computed,
	}
	for k, v := range extra {
		scope[k] = v
	}
	return scope
}

// Get resolves any dotted path (inputs.*, state.*, computed.*) against the current
// snapshot.
func (s *Snapshot) Get(path string) (any, error) {
	return evaluator.Eval(path, s.Scope(nil))
}

// ApplyStateUpdate assigns a single path under state.* and recomputes the dependent
// subset of the computed DAG (spec §4.3 channel ii).
func (s *Snapshot) ApplyStateUpdate(path string, value any) error {
	return s.ApplyStateUpdates(map[string]any{path: value})
}

// ApplyStateUpdates applies a batch of path -> value assignments, all of which must be
// under state.* (spec §4.3 channel iii / §6 workflow_update_state), then recomputes the
// union of affected computed fields once.
func (s *Snapshot) ApplyStateUpdates(updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := make([]string, 0, len(updates))
	for path, value := range updates {
		if !strings.HasPrefix(path, "state.") {
			return werrors.NewBadStatePath(path)
		}
		setNestedPath(s.state, strings.TrimPrefix(path, "state."), value)
		changed = append(changed, path)
	}

	return s.recomputeDirty(changed)
}

func (s *Snapshot) recomputeAll() error {
	if s.schema == nil {
		return nil
	}
	all := make([]string, len(s.schema.order))
	copy(all, s.schema.order)
	return s.recomputeInOrder(all)
}

// recomputeDirty extends the changed path set transitively over the computed DAG's
// reverse edges, then recomputes exactly that subset in topological order
// (spec §4.3 steps 2-4; DESIGN.md Open Question (c)).
func (s *Snapshot) recomputeDirty(changed []string) error {
	if s.schema == nil || len(s.schema.fields) == 0 {
		return nil
	}

	dirty := make(map[string]bool)
	for _, field := range s.schema.fields {
		for _, src := range field.Transform.From {
			for _, c := range changed {
				if src == c {
					dirty[field.Path] = true
				}
			}
		}
	}

	// Transitive closure over reverse edges (dependents of a dirty field are also dirty).
	for {
		added := false
		for path, dependents := range s.schema.deps {
			if !dirty[path] {
				continue
			}
			for _, dep := range dependents {
				if !dirty[dep] {
					dirty[dep] = true
					added = true
				}
			}
		}
		if !added {
			break
		}
	}

	var ordered []string
	for _, path := range s.schema.order {
		if dirty[path] {
			ordered = append(ordered, path)
		}
	}
	return s.recomputeInOrder(ordered)
}

func (s *Snapshot) recomputeInOrder(paths []string) error {
	for _, path := range paths {
		field := s.schema.byPath[path]
		scope := evaluator.Scope{
			"inputs":   s.inputs,
			"state":    s.state,
			"computed": s.computed,
		}
		val, err := transform.Resolve(field.Transform, scope)
		if err != nil {
			return werrors.NewTransformError(field.Path, err)
		}
		setNestedPath(s.computed, strings.TrimPrefix(field.Path, "computed."), val)
	}
	return nil
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// setNestedPath assigns value at a dotted path (e.g. "a.b.c") within root, creating
// intermediate maps as needed.
func setNestedPath(root map[string]any, path string, value any) {
	segments := strings.Split(path, ".")
	cur := root
	for i, seg := range segments {
		if i == len(segments)-1 {
			cur[seg] = value
			return
		}
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
}
