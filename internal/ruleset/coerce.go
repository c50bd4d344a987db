package ruleset

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/waflite/waflite/internal/normalize"
	"github.com/waflite/waflite/internal/rules"
)

var requiredRuleKeys = []string{"rid", "rtp", "w"}

func specFromDocument(obj map[string]any) (rules.Spec, error) {
	for _, key := range requiredRuleKeys {
		if _, ok := obj[key]; !ok {
			return rules.Spec{}, fmt.Errorf("missing field: %s", key)
		}
	}

	weight, err := toInt(obj["w"])
	if err != nil {
		return rules.Spec{}, fmt.Errorf("field w: %w", err)
	}

	patterns, err := stringList(obj["ps"])
	if err != nil {
		return rules.Spec{}, fmt.Errorf("field ps: %w", err)
	}

	field := rules.DefaultField
	if raw, ok := obj["fld"]; ok {
		field = normalize.String(raw)
	}

	return rules.Spec{
		ID:       normalize.String(obj["rid"]),
		Type:     normalize.String(obj["rtp"]),
		Weight:   weight,
		Patterns: patterns,
		Field:    field,
	}, nil
}

// toInt accepts JSON numbers (fractions truncate toward zero), Go integers,
// booleans and integer strings.
func toInt(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		return floatToInt(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return int(n), nil
		}
		f, err := x.Float64()
		if err != nil {
			return 0, err
		}
		return floatToInt(f)
	case string:
		return strconv.Atoi(strings.TrimSpace(x))
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("not an integer: %v", v)
	}
}

func floatToInt(f float64) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("not an integer: %v", f)
	}
	return int(f), nil
}

// stringList renders each element of a JSON list as text. A missing value
// is an empty list.
func stringList(v any) ([]string, error) {
	switch x := v.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return append([]string{}, x...), nil
	case []any:
		out := make([]string, len(x))
		for i, item := range x {
			out[i] = normalize.String(item)
		}
		return out, nil
	default:
		return nil, errors.New("expected a list")
	}
}
