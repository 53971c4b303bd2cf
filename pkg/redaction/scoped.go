package redaction

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ApplyScoped redacts only the named dotted JSON paths inside doc, leaving
// every other field untouched — the engine behind a policy's Redact{fields}
// action. A path element of "*" means "every element of this array"; paths
// that don't resolve to anything (missing field, non-string value) are
// skipped silently per the action's contract.
func ApplyScoped(doc []byte, paths []string, engine *Engine) ([]byte, []Finding, error) {
	out := append([]byte(nil), doc...)
	var allFindings []Finding

	for _, path := range paths {
		concrete := expandWildcards(out, path)
		for _, p := range concrete {
			res := gjson.GetBytes(out, p)
			if !res.Exists() || res.Type != gjson.String {
				continue
			}
			result := engine.Redact(res.String())
			updated, err := sjson.SetBytes(out, p, result.Content)
			if err != nil {
				return doc, nil, err
			}
			out = updated
			allFindings = append(allFindings, result.Findings...)
		}
	}
	return out, allFindings, nil
}

// expandWildcards turns a single "*"-bearing dotted path into the set of
// concrete, index-resolved dotted paths gjson/sjson understand natively.
// Only one "*" segment is supported, matching the condition DSL's
// "any element" semantics used for the fields a policy is likely to name
// (e.g. "data.messages.*.content").
func expandWildcards(doc []byte, path string) []string {
	idx := strings.Index(path, ".*")
	if idx < 0 && !strings.HasPrefix(path, "*") {
		return []string{path}
	}

	segments := strings.Split(path, ".")
	for i, seg := range segments {
		if seg != "*" {
			continue
		}
		arrayPath := strings.Join(segments[:i], ".")
		arr := gjson.GetBytes(doc, arrayPath)
		if !arr.IsArray() {
			return nil
		}
		var out []string
		n := len(arr.Array())
		rest := strings.Join(segments[i+1:], ".")
		for j := 0; j < n; j++ {
			p := arrayPath + "." + strconv.Itoa(j)
			if rest != "" {
				p += "." + rest
			}
			out = append(out, p)
		}
		return out
	}
	return []string{path}
}
