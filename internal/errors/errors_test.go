package errors

import (
	"errors"
	"testing"
)

func TestError_Error(t *testing.T) {
	e := NewUnknownWorkflow("wf_deadbeef")
	want := "UnknownWorkflow: no such workflow instance: wf_deadbeef"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	withStep := e.WithStep("m1")
	wantWithStep := "UnknownWorkflow: no such workflow instance: wf_deadbeef (step m1)"
	if got := withStep.Error(); got != wantWithStep {
		t.Errorf("Error() = %q, want %q", got, wantWithStep)
	}
}

func TestError_Is(t *testing.T) {
	a := NewLoopBudgetExhausted("loop1", 100)
	b := &Error{Code: LoopBudgetExhausted}
	if !errors.Is(a, b) {
		t.Error("expected errors.Is to match on Code")
	}

	c := &Error{Code: ServerDrainBudgetExhausted}
	if errors.Is(a, c) {
		t.Error("expected errors.Is to not match different Codes")
	}
}

func TestError_WithDetail(t *testing.T) {
	base := New(TransformError, "boom")
	enriched := base.WithDetail("field", "computed.n").WithDetail("source", "inputs.x")

	if len(base.Details) != 0 {
		t.Errorf("base.Details mutated, got %v", base.Details)
	}
	if enriched.Details["field"] != "computed.n" {
		t.Errorf("Details[field] = %v, want computed.n", enriched.Details["field"])
	}
	if enriched.Details["source"] != "inputs.x" {
		t.Errorf("Details[source] = %v, want inputs.x", enriched.Details["source"])
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		code Code
	}{
		{"UnknownStepKind", NewUnknownStepKind("bogus"), UnknownStepKind},
		{"MalformedStep", NewMalformedStep("s1", "missing message"), MalformedStep},
		{"ExpressionError", NewExpressionError("s1", "1/0", errors.New("divide by zero")), ExpressionError},
		{"TransformError", NewTransformError("computed.n", errors.New("index out of range")), TransformError},
		{"BadStatePath", NewBadStatePath("inputs.x"), BadStatePath},
		{"ServerDrainBudgetExhausted", NewServerDrainBudgetExhausted(10000), ServerDrainBudgetExhausted},
		{"SubAgentFailed", NewSubAgentFailed("enforce.item0", errors.New("boom")), SubAgentFailed},
		{"Cancelled", NewCancelled("wf_deadbeef"), Cancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %s, want %s", tt.err.Code, tt.code)
			}
			if tt.err.Error() == "" {
				t.Error("Error() should not be empty")
			}
		})
	}
}
