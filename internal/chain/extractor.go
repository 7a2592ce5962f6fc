// Package chain extracts values from successful responses into
// variable bindings usable by later requests. Rules are evaluated
// with JMESPath; a rule that misses, or a body that is not JSON,
// records a warning and never fails the pipeline.
package chain

import (
	"encoding/json"
	"fmt"

	"github.com/jmespath/go-jmespath"

	"github.com/studiowebux/postdad/internal/types"
)

// Binder receives extracted bindings. The environment store
// implements it as the sole writer of chain-derived state.
type Binder interface {
	SetChainBinding(name, value string)
}

// Extract applies the request's chain rules to a successful result,
// writing each matched value into the binder. Returns the extracted
// bindings and any warnings. A nil/failed result or a request without
// rules is a no-op.
func Extract(rules []types.ChainRule, result *types.ExecutionResult, binder Binder) (map[string]string, []string) {
	if len(rules) == 0 || result == nil || !result.Success() {
		return nil, nil
	}

	var data interface{}
	if err := json.Unmarshal([]byte(result.Body), &data); err != nil {
		warnings := make([]string, 0, len(rules))
		for _, rule := range rules {
			warnings = append(warnings, fmt.Sprintf("chain rule %s: response is not valid JSON", rule.Target))
		}
		return nil, warnings
	}

	extracted := make(map[string]string)
	var warnings []string
	for _, rule := range rules {
		value, err := jmespath.Search(rule.Path, data)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("chain rule %s: invalid path %q: %v", rule.Target, rule.Path, err))
			continue
		}
		if value == nil {
			warnings = append(warnings, fmt.Sprintf("chain rule %s: path %q matched nothing", rule.Target, rule.Path))
			continue
		}

		str, err := stringify(value)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("chain rule %s: %v", rule.Target, err))
			continue
		}
		extracted[rule.Target] = str
		if binder != nil {
			binder.SetChainBinding(rule.Target, str)
		}
	}

	return extracted, warnings
}

// stringify converts an extracted JSON value into its binding string.
// Scalars render plainly; composites render as compact JSON.
func stringify(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case float64:
		return fmt.Sprintf("%g", v), nil
	case bool:
		return fmt.Sprintf("%t", v), nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("cannot convert extracted value to string: %w", err)
		}
		return string(raw), nil
	}
}
