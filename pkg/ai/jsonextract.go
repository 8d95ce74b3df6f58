package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSONFound is returned when no JSON object or array can be located in a response.
var ErrNoJSONFound = errors.New("no valid JSON object or array found in response")

// GenerationError reports that a model response could not be coerced into the expected schema.
type GenerationError struct {
	Operation string
	Reason    string
	Err       error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Operation, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.Reason)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// IsGenerationError reports whether err wraps a GenerationError.
func IsGenerationError(err error) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr)
}

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.+?)\\s*```")

// ExtractJSON strips markdown fences and surrounding prose and returns the first complete JSON value.
func ExtractJSON(response string) (string, error) {
	cleaned := stripFences(response)
	if cleaned == "" {
		return "", ErrNoJSONFound
	}
	if candidate := matchBrackets(cleaned); candidate != "" && json.Valid([]byte(candidate)) {
		return candidate, nil
	}
	if json.Valid([]byte(cleaned)) {
		return cleaned, nil
	}
	return "", ErrNoJSONFound
}

// DecodeList decodes a list of items stored under key in a JSON object.
// The strict shape is {"<key>": [...]}. One repair step accepts a bare array
// or the first array-valued field of the object.
func DecodeList[T any](response, key string) ([]T, error) {
	raw, err := ExtractJSON(response)
	if err != nil {
		return nil, err
	}

	if fields, ok := objectFields(raw); ok {
		for _, f := range fields {
			if f.key != key {
				continue
			}
			var items []T
			if err := json.Unmarshal(f.value, &items); err != nil {
				return nil, fmt.Errorf("decode %s: %w", key, err)
			}
			return items, nil
		}
		for _, f := range fields {
			if !strings.HasPrefix(strings.TrimSpace(string(f.value)), "[") {
				continue
			}
			var items []T
			if err := json.Unmarshal(f.value, &items); err == nil {
				return items, nil
			}
		}
		return nil, fmt.Errorf("no %s list in response", key)
	}

	var items []T
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return items, nil
}

// DecodeObject extracts a JSON object and unmarshals it into target.
func DecodeObject(response string, target any) error {
	raw, err := ExtractJSON(response)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), target)
}

type field struct {
	key   string
	value json.RawMessage
}

// objectFields returns the top-level members of a JSON object in document order.
func objectFields(raw string) ([]field, bool) {
	dec := json.NewDecoder(strings.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, false
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, false
	}
	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := tok.(string)
		if !ok {
			return nil, false
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, false
		}
		fields = append(fields, field{key: key, value: value})
	}
	return fields, true
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fencedBlock.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func matchBrackets(s string) string {
	start := strings.IndexAny(s, "{[")
	if start == -1 {
		return ""
	}
	open := s[start]
	closing := byte('}')
	if open == '[' {
		closing = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
