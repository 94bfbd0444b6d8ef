package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONValue is a nullable database column holding an arbitrary decoded JSON
// value: null, bool, float64, string, []interface{} or
// map[string]interface{}. Stored as a JSON-encoded TEXT column.
type JSONValue struct {
	Val   interface{}
	Valid bool
}

// NewJSON wraps a decoded JSON value. NewJSON(nil) is a present JSON null;
// use the zero JSONValue for an absent column.
func NewJSON(v interface{}) JSONValue {
	return JSONValue{Val: v, Valid: true}
}

// Object returns the value as an object, or nil when the column is absent
// or holds a non-object.
func (j JSONValue) Object() map[string]interface{} {
	if !j.Valid {
		return nil
	}
	obj, _ := j.Val.(map[string]interface{})
	return obj
}

func (j JSONValue) Value() (driver.Value, error) {
	if !j.Valid {
		return nil, nil
	}
	b, err := json.Marshal(j.Val)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONValue) Scan(src interface{}) error {
	if src == nil {
		*j = JSONValue{}
		return nil
	}
	var raw []byte
	switch typed := src.(type) {
	case []byte:
		raw = typed
	case string:
		raw = []byte(typed)
	default:
		return fmt.Errorf("cannot scan %T into JSONValue", src)
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	*j = JSONValue{Val: v, Valid: true}
	return nil
}

func (j JSONValue) MarshalJSON() ([]byte, error) {
	if !j.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(j.Val)
}

func (j *JSONValue) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*j = JSONValue{}
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*j = JSONValue{Val: v, Valid: true}
	return nil
}
