// Package stepkind is the static step registry (component D): a table mapping each
// registered step kind to where it executes, its queuing discipline, and its required
// fields (spec §4.2). It is consulted only for validation and routing, never executed
// directly.
package stepkind

import werrors "github.com/aroton/aromcp-workflow/internal/errors"

// Execution classifies whether a step kind is processed inside the executor loop
// (server) or surfaced to the driving client (client).
type Execution string

const (
	Server Execution = "server"
	Client Execution = "client"
)

// Queuing classifies how a client step may be grouped with its queue-adjacent siblings.
type Queuing string

const (
	QueuingImmediate Queuing = "immediate" // never batched with siblings
	QueuingBatched   Queuing = "batched"   // may be grouped with adjacent same-kind steps
)

// Kind is the set of registered step kinds (spec §4.2 table).
type Kind string

const (
	UserMessage          Kind = "user_message"
	MCPCall              Kind = "mcp_call"
	StateUpdate          Kind = "state_update"
	Conditional          Kind = "conditional"
	WhileLoop            Kind = "while_loop"
	Foreach              Kind = "foreach"
	ParallelForeach      Kind = "parallel_foreach"
	DebugTaskCompletion  Kind = "debug_task_completion"
	DebugStepAdvance     Kind = "debug_step_advance"
)

// Entry is one row of the static registry.
type Entry struct {
	Execution      Execution
	Queuing        Queuing
	RequiredFields []string
}

// registry is the static table of spec §4.2. parallel_foreach is "client + server": it
// is classified Client here because it is the kind that surfaces to the driver, with its
// server-side spawn behavior handled by the sub-agent coordinator once acknowledged.
var registry = map[Kind]Entry{
	UserMessage:         {Execution: Client, Queuing: QueuingBatched, RequiredFields: []string{"message"}},
	MCPCall:             {Execution: Client, Queuing: QueuingImmediate, RequiredFields: []string{"tool", "parameters"}},
	StateUpdate:         {Execution: Server, Queuing: QueuingImmediate, RequiredFields: []string{"path", "value"}},
	Conditional:         {Execution: Server, Queuing: QueuingImmediate, RequiredFields: []string{"condition"}},
	WhileLoop:           {Execution: Server, Queuing: QueuingImmediate, RequiredFields: []string{"condition", "body"}},
	Foreach:             {Execution: Server, Queuing: QueuingImmediate, RequiredFields: []string{"items", "body"}},
	ParallelForeach:     {Execution: Client, Queuing: QueuingImmediate, RequiredFields: []string{"items", "sub_agent_task"}},
	DebugTaskCompletion: {Execution: Server, Queuing: QueuingImmediate, RequiredFields: []string{}},
	DebugStepAdvance:    {Execution: Server, Queuing: QueuingImmediate, RequiredFields: []string{}},
}

// Lookup returns the registry entry for kind, or UnknownStepKind if kind is unregistered
// (spec §4.2: "Unknown kinds fail with UnknownStepKind at definition load").
func Lookup(kind Kind) (Entry, error) {
	entry, ok := registry[kind]
	if !ok {
		return Entry{}, werrors.NewUnknownStepKind(string(kind))
	}
	return entry, nil
}

// Validate checks that fields contains every field the kind requires (spec §4.2:
// "missing required fields fail with MalformedStep").
func Validate(stepID string, kind Kind, fields map[string]any) error {
	entry, err := Lookup(kind)
	if err != nil {
		return err
	}
	for _, req := range entry.RequiredFields {
		if _, ok := fields[req]; !ok {
			return werrors.NewMalformedStep(stepID, "missing required field "+req)
		}
	}
	return nil
}

// IsServer reports whether kind is processed internally without ever surfacing to the
// client.
func IsServer(kind Kind) bool {
	entry, err := Lookup(kind)
	return err == nil && entry.Execution == Server
}

// IsBatchable reports whether kind may be grouped with adjacent same-kind siblings when
// gathering a client-visible batch (spec §4.6 step 4; SPEC_FULL.md Open Question (b):
// only user_message is batchable).
func IsBatchable(kind Kind) bool {
	entry, err := Lookup(kind)
	return err == nil && entry.Queuing == QueuingBatched
}
