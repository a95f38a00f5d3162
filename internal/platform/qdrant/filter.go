package qdrant

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Payload filters are field conditions only:
//
//	{"publisher": "KBS"}
//	{"publisher": {"$in": ["KBS", "MBC"]}, "lang": {"$ne": "en"}}
//
// and are translated to Qdrant must/must_not conditions. Boolean nesting and
// ranges are rejected as unsupported.

const filterOp = "filter_translate"

// TranslateFilter converts a payload filter into a Qdrant filter object.
// A nil or empty filter yields nil.
func TranslateFilter(filter map[string]any) (map[string]any, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var must, mustNot []any
	for _, key := range keys {
		field := strings.TrimSpace(key)
		if field == "" {
			continue
		}
		if strings.HasPrefix(field, "$") {
			return nil, opErr(filterOp, OperationErrorUnsupportedFilter, fmt.Sprintf("unsupported top-level filter operator %q", field), nil)
		}
		m, mn, err := translateFieldFilter(field, filter[key])
		if err != nil {
			return nil, err
		}
		must = append(must, m...)
		mustNot = append(mustNot, mn...)
	}

	out := map[string]any{}
	if len(must) > 0 {
		out["must"] = must
	}
	if len(mustNot) > 0 {
		out["must_not"] = mustNot
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func translateFieldFilter(field string, value any) (must, mustNot []any, err error) {
	ops, isOps := value.(map[string]any)
	if !isOps {
		scalar, ok := toScalarValue(value)
		if !ok {
			return nil, nil, opErr(filterOp, OperationErrorValidation, fmt.Sprintf("field %q expects scalar value or operator object", field), nil)
		}
		return []any{matchCondition(field, scalar)}, nil, nil
	}
	if len(ops) == 0 {
		return nil, nil, opErr(filterOp, OperationErrorValidation, fmt.Sprintf("field %q has empty operator map", field), nil)
	}

	names := make([]string, 0, len(ops))
	for op := range ops {
		names = append(names, op)
	}
	sort.Strings(names)

	for _, name := range names {
		op := strings.ToLower(strings.TrimSpace(name))
		opVal := ops[name]
		switch op {
		case "$eq", "$ne":
			scalar, ok := toScalarValue(opVal)
			if !ok {
				return nil, nil, opErr(filterOp, OperationErrorValidation, fmt.Sprintf("operator %s for field %q expects scalar value", op, field), nil)
			}
			if op == "$eq" {
				must = append(must, matchCondition(field, scalar))
			} else {
				mustNot = append(mustNot, matchCondition(field, scalar))
			}
		case "$in":
			values, ok := toScalarSlice(opVal)
			if !ok || len(values) == 0 {
				return nil, nil, opErr(filterOp, OperationErrorValidation, fmt.Sprintf("operator $in for field %q expects non-empty scalar array", field), nil)
			}
			must = append(must, map[string]any{"key": field, "match": map[string]any{"any": values}})
		default:
			return nil, nil, opErr(filterOp, OperationErrorUnsupportedFilter, fmt.Sprintf("unsupported filter operator %q for field %q", name, field), nil)
		}
	}
	return must, mustNot, nil
}

func matchCondition(key string, value any) map[string]any {
	return map[string]any{"key": key, "match": map[string]any{"value": value}}
}

func toScalarSlice(value any) ([]any, bool) {
	switch typed := value.(type) {
	case []string:
		out := make([]any, 0, len(typed))
		for _, v := range typed {
			out = append(out, v)
		}
		return out, true
	case []any:
		out := make([]any, 0, len(typed))
		for _, v := range typed {
			scalar, ok := toScalarValue(v)
			if !ok {
				return nil, false
			}
			out = append(out, scalar)
		}
		return out, true
	default:
		return nil, false
	}
}

func toScalarValue(value any) (any, bool) {
	switch typed := value.(type) {
	case string, bool, int, int64, float64:
		return typed, true
	case int32:
		return int64(typed), true
	case float32:
		return float64(typed), true
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return i, true
		}
		if f, err := typed.Float64(); err == nil {
			return f, true
		}
	}
	return nil, false
}
