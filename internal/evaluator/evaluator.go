// Package evaluator implements the restricted expression grammar and {{...}} template
// interpolation described by the workflow engine (component A): boolean/arithmetic/
// comparison/ternary/member/index expressions evaluated against a read-only scope, with
// integer-vs-float type preservation.
package evaluator

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"

	werrors "github.com/aroton/aromcp-workflow/internal/errors"
)

// Scope is the read-only environment an expression or template is evaluated against.
// Callers always populate the top-level namespaces they expose (e.g. "inputs", "state",
// "computed", and loop bindings where in scope) even when empty, so that member access on
// a known namespace never panics; only leaf keys may be legitimately absent, in which case
// map indexing yields nil rather than raising.
type Scope map[string]any

// pureRefPattern matches a bare dotted/indexed path with no operators: the fast path used
// both to preserve integer typing on raw Eval() calls and to avoid invoking expr-lang for
// the common "{{ a.b.c }}" case.
var pureRefPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*((\.[A-Za-z_][A-Za-z0-9_]*)|(\[\d+\]))*$`)

var programCache = newCompileCache()

// Eval evaluates expr against scope and returns the typed result. A pure reference
// (e.g. "inputs.items" or "inputs.items.length") resolves by direct path-walk and
// preserves the source value's type untouched (an int stays an int); any expression
// containing an operator is compiled and run through expr-lang, which for this engine's
// map-shaped environment preserves Go's own int/float64 distinction without coercion.
func Eval(expression string, scope Scope) (any, error) {
	trimmed := strings.TrimSpace(expression)
	if pureRefPattern.MatchString(trimmed) && !isLiteralKeyword(trimmed) {
		return resolvePath(trimmed, scope)
	}

	program, err := programCache.compile(trimmed)
	if err != nil {
		return nil, werrors.NewExpressionError("", expression, err)
	}

	out, err := vm.Run(program, map[string]any(scope))
	if err != nil {
		return nil, werrors.NewExpressionError("", expression, err)
	}
	// expr-lang's `/` yields ±Inf or NaN on a zero divisor instead of failing.
	if f, ok := out.(float64); ok && (math.IsInf(f, 0) || math.IsNaN(f)) {
		return nil, werrors.NewExpressionError("", expression, fmt.Errorf("division by zero"))
	}
	return out, nil
}

// isLiteralKeyword reports whether s is a boolean/nil literal, which pureRefPattern
// would otherwise treat as a path.
func isLiteralKeyword(s string) bool {
	switch s {
	case "true", "false", "nil":
		return true
	}
	return false
}

// lengthPatcher rewrites `x.length` member access into a call to the builtin `len`,
// since the grammar (spec §4.1) exposes `.length` but expr-lang's native surface is
// `len(x)`.
type lengthPatcher struct{}

func (lengthPatcher) Visit(node *ast.Node) {
	member, ok := (*node).(*ast.MemberNode)
	if !ok {
		return
	}
	prop, ok := member.Property.(*ast.StringNode)
	if !ok || prop.Value != "length" {
		return
	}
	ast.Patch(node, &ast.BuiltinNode{
		Name:      "len",
		Arguments: []ast.Node{member.Node},
	})
}

type compileCache struct {
	programs map[string]*vm.Program
}

func newCompileCache() *compileCache {
	return &compileCache{programs: make(map[string]*vm.Program)}
}

func (c *compileCache) compile(expression string) (*vm.Program, error) {
	if p, ok := c.programs[expression]; ok {
		return p, nil
	}
	program, err := expr.Compile(expression, expr.Env(Scope{}), expr.Patch(lengthPatcher{}), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	c.programs[expression] = program
	return program, nil
}

// resolvePath walks a dotted/indexed pure-reference path (optionally suffixed with
// ".length") against scope. A missing leaf key yields nil, not an error; a leaf accessed
// through a non-map, non-slice ancestor is an error (spec §4.3: "indexing beyond array
// bounds fails").
func resolvePath(path string, scope Scope) (any, error) {
	wantsLength := false
	if strings.HasSuffix(path, ".length") {
		wantsLength = true
		path = strings.TrimSuffix(path, ".length")
	}

	segments := splitPath(path)
	var cur any = map[string]any(scope)
	for _, seg := range segments {
		if cur == nil {
			return nil, nil
		}
		idx, isIndex := seg.index()
		switch c := cur.(type) {
		case map[string]any:
			if isIndex {
				return nil, fmt.Errorf("cannot index a map with [%d]", idx)
			}
			cur = c[seg.name]
		case []any:
			if !isIndex {
				return nil, fmt.Errorf("cannot access field %q on a list", seg.name)
			}
			if idx < 0 || idx >= len(c) {
				return nil, fmt.Errorf("index %d out of bounds (len %d)", idx, len(c))
			}
			cur = c[idx]
		default:
			return nil, fmt.Errorf("cannot resolve %q against a non-container value", seg.name)
		}
	}

	if wantsLength {
		return lengthOf(cur)
	}
	return cur, nil
}

func lengthOf(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case string:
		return len(x), nil
	case []any:
		return len(x), nil
	case map[string]any:
		return len(x), nil
	default:
		return nil, fmt.Errorf("length is not defined for %T", v)
	}
}

type pathSegment struct {
	name string
	idx  int
	kind segmentKind
}

type segmentKind int

const (
	segField segmentKind = iota
	segIndex
)

func (s pathSegment) index() (int, bool) {
	return s.idx, s.kind == segIndex
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
var indexPattern = regexp.MustCompile(`\[(\d+)\]`)

func splitPath(path string) []pathSegment {
	var segments []pathSegment
	for _, part := range strings.Split(path, ".") {
		rest := part
		for {
			if m := indexPattern.FindStringIndex(rest); m != nil {
				name := rest[:m[0]]
				if name != "" {
					segments = append(segments, pathSegment{name: name, kind: segField})
				}
				var idx int
				fmt.Sscanf(rest[m[0]:m[1]], "[%d]", &idx)
				segments = append(segments, pathSegment{idx: idx, kind: segIndex})
				rest = rest[m[1]:]
				continue
			}
			if rest != "" {
				segments = append(segments, pathSegment{name: rest, kind: segField})
			}
			break
		}
	}
	return segments
}
