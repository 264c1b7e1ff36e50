// Package errors defines the workflow engine's structured error taxonomy.
package errors

import "fmt"

// Code identifies a class of engine error; codes surface verbatim in RPC responses.
type Code string

const (
	UnknownWorkflow            Code = "UnknownWorkflow"
	UnknownStepKind            Code = "UnknownStepKind"
	MalformedStep              Code = "MalformedStep"
	ExpressionError            Code = "ExpressionError"
	TransformError             Code = "TransformError"
	BadStatePath               Code = "BadStatePath"
	LoopBudgetExhausted        Code = "LoopBudgetExhausted"
	ServerDrainBudgetExhausted Code = "ServerDrainBudgetExhausted"
	SubAgentFailed             Code = "SubAgentFailed"
	Cancelled                  Code = "Cancelled"
)

// Error is the structured error type returned by the engine and carried on a
// failed WorkflowInstance.
type Error struct {
	Code    Code
	Message string
	StepID  string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("%s: %s (step %s)", e.Code, e.Message, e.StepID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is an *Error with the same Code, so callers can use
// errors.Is(err, &errors.Error{Code: errors.UnknownWorkflow}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithStep returns a copy of e with StepID set.
func (e *Error) WithStep(stepID string) *Error {
	cp := *e
	cp.StepID = stepID
	return &cp
}

// WithDetail returns a copy of e with a detail key set.
func (e *Error) WithDetail(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Newf(code Code, stepID string, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), StepID: stepID}
}

func NewUnknownWorkflow(workflowID string) *Error {
	return New(UnknownWorkflow, "no such workflow instance: %s", workflowID)
}

func NewUnknownStepKind(kind string) *Error {
	return New(UnknownStepKind, "unregistered step kind: %s", kind)
}

func NewMalformedStep(stepID string, reason string) *Error {
	return Newf(MalformedStep, stepID, "malformed step: %s", reason)
}

func NewExpressionError(stepID string, expr string, cause error) *Error {
	return Newf(ExpressionError, stepID, "evaluating %q: %v", expr, cause)
}

func NewTransformError(field string, cause error) *Error {
	return New(TransformError, "computing field %s: %v", field, cause)
}

func NewBadStatePath(path string) *Error {
	return New(BadStatePath, "path %q is not under state.*", path)
}

func NewLoopBudgetExhausted(stepID string, max int) *Error {
	return Newf(LoopBudgetExhausted, stepID, "while_loop exceeded max_iterations (%d)", max)
}

func NewServerDrainBudgetExhausted(max int) *Error {
	return New(ServerDrainBudgetExhausted, "server step drain exceeded budget (%d)", max)
}

func NewSubAgentFailed(taskID string, cause error) *Error {
	return New(SubAgentFailed, "sub-agent %s failed: %v", taskID, cause)
}

func NewCancelled(workflowID string) *Error {
	return New(Cancelled, "workflow %s was cancelled", workflowID)
}
