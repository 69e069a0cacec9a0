package workflow

import (
	"strconv"
	"strings"

	"github.com/chemgate/chemgate/types"
)

const refPrefix = "$step"

// parseRef splits a reference of the form "$stepN.field.sub" into the step
// index and the payload path. ok is false for values that are not references
// at all; a malformed reference returns an error.
func parseRef(v interface{}) (idx int, path []string, ok bool, err *types.Error) {
	s, isString := v.(string)
	if !isString || !strings.HasPrefix(s, refPrefix) {
		return 0, nil, false, nil
	}

	parts := strings.Split(strings.TrimPrefix(s, refPrefix), ".")
	if len(parts) < 2 {
		return 0, nil, false, types.NewError(types.CodeBinding,
			"malformed reference %q: want $stepN.field", s)
	}

	idx, convErr := strconv.Atoi(parts[0])
	if convErr != nil || idx < 0 {
		return 0, nil, false, types.NewError(types.CodeBinding,
			"malformed reference %q: bad step index", s)
	}
	return idx, parts[1:], true, nil
}

// resolveBindings materializes a step's arguments: literals pass through,
// references pull fields out of prior recorded payloads.
func resolveBindings(bindings map[string]interface{}, results []types.ToolResult) (map[string]interface{}, *types.Error) {
	args := make(map[string]interface{}, len(bindings))
	for name, value := range bindings {
		idx, path, isRef, err := parseRef(value)
		if err != nil {
			return nil, err
		}
		if !isRef {
			args[name] = value
			continue
		}

		resolved, err := lookupField(idx, path, results)
		if err != nil {
			return nil, err
		}
		args[name] = resolved
	}
	return args, nil
}

func lookupField(idx int, path []string, results []types.ToolResult) (interface{}, *types.Error) {
	if idx >= len(results) {
		return nil, types.NewError(types.CodeBinding,
			"reference to step %d, but only %d steps have run", idx, len(results))
	}

	res := results[idx]
	if res.Skipped() {
		return nil, types.NewError(types.CodeBinding,
			"reference to step %d, which was skipped", idx)
	}
	if !res.OK() {
		return nil, types.NewError(types.CodeBinding,
			"reference to step %d, which did not produce a payload", idx)
	}

	var current interface{} = res.Payload
	for _, field := range path {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, types.NewError(types.CodeBinding,
				"step %d payload field %q is not an object", idx, field)
		}
		current, ok = m[field]
		if !ok {
			return nil, types.NewError(types.CodeBinding,
				"step %d payload has no field %q", idx, field)
		}
	}
	return current, nil
}

// conditionEnv builds the expression environment a step condition sees: the
// results recorded so far as a "steps" slice of {status, payload, error}.
func conditionEnv(results []types.ToolResult) map[string]interface{} {
	steps := make([]interface{}, 0, len(results))
	for _, res := range results {
		payload := res.Payload
		if payload == nil {
			payload = map[string]interface{}{}
		}
		entry := map[string]interface{}{
			"status":  res.Status,
			"payload": payload,
		}
		if res.Error != nil {
			entry["error"] = map[string]interface{}{
				"code":    res.Error.Code,
				"message": res.Error.Message,
			}
		}
		steps = append(steps, entry)
	}
	return map[string]interface{}{"steps": steps}
}
