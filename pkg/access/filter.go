// Package access evaluates ToolRecord access requirements against a
// caller's validated claim set: arbitrary claim names, value sets, and
// any/all match semantics.
package access

import (
	"fmt"
	"strings"

	"github.com/kong-mcp/bridge/pkg/config"
)

// ClaimSet is the decoded claim set produced by OAuth validation. Values
// may be strings, string slices, or other JSON scalar types.
type ClaimSet map[string]any

// Allow reports whether claims satisfy every requirement in reqs. An
// empty or nil requirement list is public: it always passes. Multiple
// requirements are AND-combined.
func Allow(claims ClaimSet, reqs []config.Requirement) bool {
	for _, req := range reqs {
		if !satisfies(claims, req) {
			return false
		}
	}
	return true
}

func satisfies(claims ClaimSet, req config.Requirement) bool {
	raw, ok := claims[req.ClaimName]
	if !ok {
		return false
	}

	tokens := normalize(raw)

	matched := 0
	for _, want := range req.ClaimValues {
		if tokens[want] {
			matched++
		}
	}

	switch req.MatchType {
	case config.MatchAll:
		return matched == len(req.ClaimValues)
	case config.MatchAny:
		return matched > 0
	default:
		return false
	}
}

// normalize turns a claim value into a set of string tokens: a string is
// split on whitespace, a []string (or []any of strings) is taken
// element-wise, and any other scalar is stringified to a single token.
func normalize(raw any) map[string]bool {
	tokens := make(map[string]bool)

	switch v := raw.(type) {
	case string:
		for _, tok := range strings.Fields(v) {
			tokens[tok] = true
		}
	case []string:
		for _, tok := range v {
			tokens[tok] = true
		}
	case []any:
		for _, item := range v {
			tokens[fmt.Sprintf("%v", item)] = true
		}
	default:
		tokens[fmt.Sprintf("%v", v)] = true
	}

	return tokens
}
