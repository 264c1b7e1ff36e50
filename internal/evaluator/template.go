package evaluator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// templatePattern matches {{ expr }} occurrences, grounded on the teacher's own
// varPattern in internal/workflow/vars.go.
var templatePattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

const maxSubstituteDepth = 10

// Substitute interpolates every {{ expr }} occurrence in input against scope, coercing
// each result to a string. A template with no match is returned unchanged (spec §4.1).
// Undefined references resolve to a kind-appropriate default rather than raising, so a
// message built from partially-populated state stays human-readable.
func Substitute(input string, scope Scope) (string, error) {
	out := input
	for depth := 0; depth < maxSubstituteDepth; depth++ {
		if !templatePattern.MatchString(out) {
			return out, nil
		}

		var evalErr error
		next := templatePattern.ReplaceAllStringFunc(out, func(match string) string {
			if evalErr != nil {
				return match
			}
			inner := templatePattern.FindStringSubmatch(match)[1]
			val, err := Eval(inner, scope)
			if err != nil {
				if !looksUndefined(err) {
					evalErr = err
					return match
				}
				val = nil
			}
			return stringify(val)
		})
		if evalErr != nil {
			return "", evalErr
		}
		if next == out {
			return out, nil
		}
		out = next
	}
	return out, nil
}

// looksUndefined reports whether an evaluator error stems from an operation on a nil
// (undefined-reference) operand, as opposed to a genuine evaluation failure such as
// division by zero or an out-of-bounds index — the latter must still propagate per
// spec §4.3/§4.5.
func looksUndefined(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "nil") || strings.Contains(msg, "<nil>")
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}
