package templateutil

import (
	"encoding/json"
	"reflect"

	"github.com/pkg/errors"
)

// Difference records a changed leaf value
type Difference struct {
	OldValue any `json:"oldValue"`
	NewValue any `json:"newValue"`
}

// FindDifferences compares two JSON-like maps. Nested maps present on both
// sides are compared recursively and only kept when something below them
// changed; every other differing key yields a Difference.
func FindDifferences(a, b map[string]any) map[string]any {
	diff := map[string]any{}

	for key, newValue := range b {
		oldValue, ok := a[key]
		if !ok {
			diff[key] = Difference{OldValue: nil, NewValue: newValue}
			continue
		}

		oldMap, oldIsMap := oldValue.(map[string]any)
		newMap, newIsMap := newValue.(map[string]any)
		if oldIsMap && newIsMap {
			if nested := FindDifferences(oldMap, newMap); len(nested) > 0 {
				diff[key] = nested
			}
			continue
		}

		if !reflect.DeepEqual(oldValue, newValue) {
			diff[key] = Difference{OldValue: oldValue, NewValue: newValue}
		}
	}

	for key, oldValue := range a {
		if _, ok := b[key]; !ok {
			diff[key] = Difference{OldValue: oldValue, NewValue: nil}
		}
	}

	return diff
}

// ToMap converts a value to its JSON object representation
func ToMap(v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshal for diff")
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "value is not a JSON object")
	}
	return out, nil
}

// HasChanges reports whether b differs from a anywhere
func HasChanges(a, b any) (bool, error) {
	am, err := ToMap(a)
	if err != nil {
		return false, err
	}
	bm, err := ToMap(b)
	if err != nil {
		return false, err
	}
	return len(FindDifferences(am, bm)) > 0, nil
}
