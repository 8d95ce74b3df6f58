package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONList maps a JSONB array column onto a typed slice.
type JSONList[T any] []T

// Value implements driver.Valuer.
func (l JSONList[T]) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]T(l))
}

// Scan implements sql.Scanner.
func (l *JSONList[T]) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = JSONList[T]{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("jsonb list: unsupported source %T", src)
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("jsonb list: %w", err)
	}
	*l = items
	return nil
}

// JSONObject maps a nullable JSONB object column onto a raw message.
type JSONObject json.RawMessage

// Value implements driver.Valuer.
func (o JSONObject) Value() (driver.Value, error) {
	if len(o) == 0 {
		return nil, nil
	}
	return []byte(o), nil
}

// Scan implements sql.Scanner.
func (o *JSONObject) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*o = nil
	case []byte:
		*o = append((*o)[:0], v...)
	case string:
		*o = JSONObject(v)
	default:
		return fmt.Errorf("jsonb object: unsupported source %T", src)
	}
	return nil
}

// MarshalJSON keeps the raw document in API payloads.
func (o JSONObject) MarshalJSON() ([]byte, error) {
	if len(o) == 0 {
		return []byte("null"), nil
	}
	return []byte(o), nil
}

// UnmarshalJSON stores the raw document.
func (o *JSONObject) UnmarshalJSON(data []byte) error {
	*o = append((*o)[:0], data...)
	return nil
}
