package util

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oliveagle/jsonpath"
)

var tokenRe = regexp.MustCompile(`{(.*?)}`)

// ResolveNodeConfig interpolates {$.path} jsonpath tokens in a node
// config against the accumulated execution state. A string that is a
// single token resolves to the raw looked up value so structured values
// survive; mixed strings are substituted textually.
func ResolveNodeConfig(state map[string]any, config map[string]any) map[string]any {
	output := make(map[string]any)
	resolveMap(state, config, output)
	return output
}

func resolveMap(state map[string]any, params map[string]any, output map[string]any) {
	for k, v := range params {
		output[k] = resolveValue(state, v)
	}
}

func resolveValue(state map[string]any, v any) any {
	switch value := v.(type) {
	case map[string]any:
		out := make(map[string]any)
		resolveMap(state, value, out)
		return out
	case []any:
		out := make([]any, 0, len(value))
		for _, item := range value {
			out = append(out, resolveValue(state, item))
		}
		return out
	case string:
		return resolveString(state, value)
	default:
		return v
	}
}

func resolveString(state map[string]any, s string) any {
	tokens := tokenRe.FindAllString(s, -1)
	if len(tokens) == 0 {
		return s
	}
	if len(tokens) == 1 && tokens[0] == s {
		path := strings.TrimSuffix(strings.TrimPrefix(s, "{"), "}")
		if !strings.HasPrefix(path, "$") {
			return s
		}
		value, err := jsonpath.JsonPathLookup(state, path)
		if err != nil {
			return nil
		}
		return value
	}
	result := s
	for _, token := range tokens {
		path := strings.TrimSuffix(strings.TrimPrefix(token, "{"), "}")
		if !strings.HasPrefix(path, "$") {
			continue
		}
		value, _ := jsonpath.JsonPathLookup(state, path)
		result = strings.ReplaceAll(result, token, fmt.Sprintf("%v", value))
	}
	return result
}
