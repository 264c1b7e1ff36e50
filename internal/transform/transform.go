// Package transform implements the transformation engine (component B): the pure
// function (expression, source_values) -> value behind every computed field.
package transform

import (
	"github.com/aroton/aromcp-workflow/internal/evaluator"
)

// OnError selects what happens when a transform's expression fails to evaluate.
type OnError string

const (
	OnErrorUseFallback OnError = "use_fallback"
	OnErrorPropagate   OnError = "propagate"
)

// Descriptor is a single declarative transform: `from` -> `expression` (spec §3).
type Descriptor struct {
	From       []string // one or more source paths (inputs.X, state.X, computed.X, loop.*/item/index)
	Expression string
	OnError    OnError
	Fallback   any
}

// Evaluate computes a transform's result against the current full scope (so the
// expression can reference any in-scope path, e.g. loop.index), plus two convenience
// bindings built from `from`: "input" holds the single resolved source value when Descriptor
// has exactly one From path (spec §4.2 example: {from:"inputs.items", expression:"input.length"}),
// and "values" holds the resolved values of every From path in order, for multi-source
// transforms. On error, the caller applies Descriptor.OnError/Fallback (spec §4.3 step 4).
func Evaluate(d Descriptor, scope evaluator.Scope) (any, error) {
	env := make(evaluator.Scope, len(scope)+2)
	for k, v := range scope {
		env[k] = v
	}

	values := make([]any, 0, len(d.From))
	for _, path := range d.From {
		v, err := evaluator.Eval(path, scope)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	if len(d.From) == 1 {
		env["input"] = values[0]
	}
	env["values"] = values

	return evaluator.Eval(d.Expression, env)
}

// Resolve runs Evaluate and applies the transform's on_error policy: on failure, returns
// (Fallback, nil) when OnError is OnErrorUseFallback, otherwise returns the error unchanged
// so the caller (the state manager) can fail the instance with TransformError.
func Resolve(d Descriptor, scope evaluator.Scope) (any, error) {
	val, err := Evaluate(d, scope)
	if err != nil {
		if d.OnError == OnErrorUseFallback {
			return d.Fallback, nil
		}
		return nil, err
	}
	return val, nil
}
