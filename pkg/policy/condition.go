package policy

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

// regexCache lazily compiles and caches matches_regex patterns across
// evaluations, keyed by pattern text.
var regexCache sync.Map // map[string]*regexp.Regexp

func compileCached(pattern string) (*regexp.Regexp, error) {
	if v, ok := regexCache.Load(pattern); ok {
		return v.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache.Store(pattern, re)
	return re, nil
}

// Evaluate evaluates a condition tree against an event's serialized JSON
// form. It is a pure function: no side effects, no mutation.
func Evaluate(cond Condition, eventJSON []byte) bool {
	switch {
	case len(cond.All) > 0:
		for _, c := range cond.All {
			if !Evaluate(c, eventJSON) {
				return false
			}
		}
		return true
	case len(cond.Any) > 0:
		for _, c := range cond.Any {
			if Evaluate(c, eventJSON) {
				return true
			}
		}
		return false
	case cond.Not != nil:
		return !Evaluate(*cond.Not, eventJSON)
	default:
		return evaluateLeaf(cond, eventJSON)
	}
}

// evaluateLeaf evaluates a single {field, op, value} comparison. A "*"
// path segment means "any element of this array satisfies the comparison".
// Bad fields or regexes are treated as non-match rather than raised, per
// the PolicyEval error-recovery rule.
func evaluateLeaf(cond Condition, eventJSON []byte) bool {
	if strings.Contains(cond.Field, "*") {
		return evaluateWildcard(cond, eventJSON)
	}
	result := lookupField(eventJSON, cond.Field)
	if !result.Exists() {
		return false
	}
	return compare(cond.Op, result, cond.Value)
}

// lookupField resolves a dotted field path. Policies are written against
// the documented "envelope.x" / "data.x" notation, but the wire form
// flattens envelope and payload fields into one top-level object, so when
// the literal path misses, the notation prefix is stripped and retried.
func lookupField(eventJSON []byte, field string) gjson.Result {
	if r := gjson.GetBytes(eventJSON, field); r.Exists() {
		return r
	}
	if flat, ok := stripNotationPrefix(field); ok {
		return gjson.GetBytes(eventJSON, flat)
	}
	return gjson.Result{}
}

func stripNotationPrefix(field string) (string, bool) {
	for _, prefix := range []string{"envelope.", "data."} {
		if strings.HasPrefix(field, prefix) {
			return field[len(prefix):], true
		}
	}
	return "", false
}

func evaluateWildcard(cond Condition, eventJSON []byte) bool {
	idx := strings.Index(cond.Field, "*")
	arrayPath := strings.TrimSuffix(cond.Field[:idx], ".")
	rest := strings.TrimPrefix(cond.Field[idx+1:], ".")

	arr := lookupField(eventJSON, arrayPath)
	if !arr.IsArray() {
		return false
	}
	for _, elem := range arr.Array() {
		var val gjson.Result
		if rest == "" {
			val = elem
		} else {
			val = elem.Get(rest)
		}
		if !val.Exists() {
			continue
		}
		if compare(cond.Op, val, cond.Value) {
			return true
		}
	}
	return false
}

func compare(op Op, actual gjson.Result, expected any) bool {
	switch op {
	case OpEq:
		return equalValue(actual, expected)
	case OpNe:
		return !equalValue(actual, expected)
	case OpGt, OpLt, OpGe, OpLe:
		a, aok := numericValue(actual)
		b, bok := toFloat(expected)
		if !aok || !bok {
			return false
		}
		switch op {
		case OpGt:
			return a > b
		case OpLt:
			return a < b
		case OpGe:
			return a >= b
		case OpLe:
			return a <= b
		}
		return false
	case OpContains:
		return strings.Contains(actual.String(), toString(expected))
	case OpStartsWith:
		return strings.HasPrefix(actual.String(), toString(expected))
	case OpMatchesRegex:
		re, err := compileCached(toString(expected))
		if err != nil {
			return false
		}
		return re.MatchString(actual.String())
	case OpIn:
		return inSlice(actual, expected)
	case OpNotIn:
		return !inSlice(actual, expected)
	default:
		return false
	}
}

func equalValue(actual gjson.Result, expected any) bool {
	switch v := expected.(type) {
	case string:
		return actual.String() == v
	case bool:
		return actual.Bool() == v
	}
	if f, ok := toFloat(expected); ok {
		if af, aok := numericValue(actual); aok {
			return af == f
		}
	}
	return actual.String() == toString(expected)
}

func numericValue(r gjson.Result) (float64, bool) {
	if r.Type == gjson.Number {
		return r.Float(), true
	}
	f, err := strconv.ParseFloat(r.String(), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func inSlice(actual gjson.Result, expected any) bool {
	list, ok := expected.([]any)
	if !ok {
		return false
	}
	for _, item := range list {
		if equalValue(actual, item) {
			return true
		}
	}
	return false
}
