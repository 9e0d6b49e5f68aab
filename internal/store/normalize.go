// ABOUTME: Field normalisation and name validation for record writes and queries
// ABOUTME: Converts Go values to the JSON-compatible form every backend returns

package store

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/2389/fitportal/internal/apperr"
)

var (
	collectionPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	fieldPathPattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
	fieldKeyPattern   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

func validateCollection(collection string) error {
	if !collectionPattern.MatchString(collection) {
		return apperr.Validation("collection", fmt.Sprintf("invalid collection name %q", collection))
	}
	return nil
}

func validateID(id string) error {
	if id == "" {
		return apperr.Validation(KeyID, "is required")
	}
	if len(id) > 256 {
		return apperr.Validation(KeyID, "is too long")
	}
	return nil
}

func validateFieldPath(path string) error {
	if !fieldPathPattern.MatchString(path) {
		return apperr.Validation(path, "invalid field path")
	}
	return nil
}

func isReserved(key string) bool {
	return key == KeyID || key == KeyCreatedAt || key == KeyUpdatedAt
}

// normalizeFields validates top-level keys and converts values to their
// stored JSON form.
func normalizeFields(in Fields) (Fields, error) {
	for key := range in {
		if isReserved(key) {
			return nil, apperr.Validation(key, "is managed by the store")
		}
		if !fieldKeyPattern.MatchString(key) {
			return nil, apperr.Validation(key, "invalid field name")
		}
	}
	if in == nil {
		return Fields{}, nil
	}

	data, err := json.Marshal(prepare(map[string]any(in)))
	if err != nil {
		return nil, apperr.Validation("fields", "not JSON-compatible: "+err.Error())
	}
	out := Fields{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, apperr.Validation("fields", "not JSON-compatible: "+err.Error())
	}
	return out, nil
}

// normalizeValue converts a single filter value to its stored JSON form.
func normalizeValue(v any) (any, error) {
	data, err := json.Marshal(prepare(v))
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// prepare rewrites timestamps to TimeFormat strings so they sort
// lexicographically. Other values are left for encoding/json.
func prepare(v any) any {
	switch val := v.(type) {
	case time.Time:
		return FormatTime(val)
	case *time.Time:
		if val == nil {
			return nil
		}
		return FormatTime(*val)
	case Fields:
		return prepare(map[string]any(val))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = prepare(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = prepare(item)
		}
		return out
	case []time.Time:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = FormatTime(item)
		}
		return out
	default:
		return v
	}
}

// encodeFields renders normalised fields as a JSON object.
func encodeFields(f Fields) ([]byte, error) {
	if f == nil {
		f = Fields{}
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encoding fields: %w", err)
	}
	return data, nil
}

// decodeFields parses a stored JSON object.
func decodeFields(data []byte) (Fields, error) {
	out := Fields{}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding fields: %w", err)
	}
	return out, nil
}

func cloneFields(in Fields) Fields {
	if in == nil {
		return nil
	}
	out := make(Fields, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// mergeFields returns base with partial's top-level keys applied.
func mergeFields(base, partial Fields) Fields {
	out := cloneFields(base)
	if out == nil {
		out = Fields{}
	}
	for k, v := range partial {
		out[k] = cloneValue(v)
	}
	return out
}

// touch returns the updatedAt for a write to a record last updated at prev.
func touch(prev time.Time) time.Time {
	t := now()
	if t.Before(prev) {
		return prev
	}
	return t
}
