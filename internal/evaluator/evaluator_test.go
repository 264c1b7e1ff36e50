package evaluator

import (
	"testing"
)

func baseScope() Scope {
	return Scope{
		"inputs":   map[string]any{"x": 5, "items": []any{"a", "b", "c"}, "name": "widget"},
		"state":    map[string]any{},
		"computed": map[string]any{},
	}
}

func TestEval_IntegerPreservation(t *testing.T) {
	scope := baseScope()

	val, err := Eval("inputs.items.length", scope)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	n, ok := val.(int)
	if !ok {
		t.Fatalf("Eval(inputs.items.length) returned %T, want int", val)
	}
	if n != 3 {
		t.Errorf("length = %d, want 3", n)
	}
}

func TestEval_Arithmetic_IntStaysInt(t *testing.T) {
	scope := baseScope()

	val, err := Eval("inputs.x + 1", scope)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if _, ok := val.(int); !ok {
		t.Errorf("inputs.x + 1 returned %T (%v), want int", val, val)
	}
}

func TestEval_Arithmetic_FloatPropagates(t *testing.T) {
	scope := baseScope()

	val, err := Eval("inputs.x + 0.5", scope)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if _, ok := val.(float64); !ok {
		t.Errorf("inputs.x + 0.5 returned %T (%v), want float64", val, val)
	}
}

func TestEval_Comparison(t *testing.T) {
	scope := baseScope()

	val, err := Eval("inputs.x > 0", scope)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if val != true {
		t.Errorf("inputs.x > 0 = %v, want true", val)
	}
}

func TestEval_Ternary(t *testing.T) {
	scope := baseScope()

	val, err := Eval(`inputs.x > 0 ? "pos" : "neg"`, scope)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if val != "pos" {
		t.Errorf("ternary = %v, want pos", val)
	}
}

func TestEval_Indexing(t *testing.T) {
	scope := baseScope()

	val, err := Eval("inputs.items[1]", scope)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if val != "b" {
		t.Errorf("indexing = %v, want b", val)
	}
}

func TestEval_IndexOutOfBounds(t *testing.T) {
	scope := baseScope()

	_, err := Eval("inputs.items[99]", scope)
	if err == nil {
		t.Error("expected error for out-of-bounds index")
	}
}

func TestEval_DivideByZero(t *testing.T) {
	scope := baseScope()

	_, err := Eval("inputs.x / 0", scope)
	if err == nil {
		t.Error("expected error for division by zero")
	}
}

func TestEval_UndefinedPureReference(t *testing.T) {
	scope := baseScope()

	val, err := Eval("state.missing", scope)
	if err != nil {
		t.Fatalf("Eval of undefined leaf should not error, got %v", err)
	}
	if val != nil {
		t.Errorf("state.missing = %v, want nil", val)
	}
}

func TestSubstitute_NoMatch(t *testing.T) {
	out, err := Substitute("plain text", baseScope())
	if err != nil {
		t.Fatalf("Substitute failed: %v", err)
	}
	if out != "plain text" {
		t.Errorf("Substitute = %q, want unchanged", out)
	}
}

func TestSubstitute_SimpleReference(t *testing.T) {
	out, err := Substitute("hello {{ inputs.name }}", baseScope())
	if err != nil {
		t.Fatalf("Substitute failed: %v", err)
	}
	if out != "hello widget" {
		t.Errorf("Substitute = %q, want %q", out, "hello widget")
	}
}

func TestSubstitute_IntegerStringifiesWithoutDecimal(t *testing.T) {
	out, err := Substitute("count: {{ inputs.items.length }}", baseScope())
	if err != nil {
		t.Fatalf("Substitute failed: %v", err)
	}
	if out != "count: 3" {
		t.Errorf("Substitute = %q, want %q", out, "count: 3")
	}
}

func TestSubstitute_UndefinedReferenceDefaultsToEmpty(t *testing.T) {
	out, err := Substitute("value: [{{ state.missing }}]", baseScope())
	if err != nil {
		t.Fatalf("Substitute failed: %v", err)
	}
	if out != "value: []" {
		t.Errorf("Substitute = %q, want %q", out, "value: []")
	}
}

func TestSubstitute_MultipleOccurrences(t *testing.T) {
	out, err := Substitute("{{ inputs.name }} has {{ inputs.items.length }} items", baseScope())
	if err != nil {
		t.Fatalf("Substitute failed: %v", err)
	}
	want := "widget has 3 items"
	if out != want {
		t.Errorf("Substitute = %q, want %q", out, want)
	}
}
