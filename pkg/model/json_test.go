package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONValueValueAndScan(t *testing.T) {
	v := NewJSON(map[string]interface{}{"message": "hi", "count": float64(2)})

	stored, err := v.Value()
	require.NoError(t, err)

	var scanned JSONValue
	require.NoError(t, scanned.Scan(stored))
	assert.True(t, scanned.Valid)
	assert.Equal(t, v.Object(), scanned.Object())
}

func TestJSONValueAbsent(t *testing.T) {
	var v JSONValue
	stored, err := v.Value()
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.Nil(t, v.Object())

	var scanned JSONValue
	require.NoError(t, scanned.Scan(nil))
	assert.False(t, scanned.Valid)
}

func TestJSONValuePresentNull(t *testing.T) {
	v := NewJSON(nil)
	stored, err := v.Value()
	require.NoError(t, err)
	assert.Equal(t, "null", stored)
	assert.Nil(t, v.Object())
}

func TestJSONValueScanRejectsUnknownType(t *testing.T) {
	var v JSONValue
	assert.Error(t, v.Scan(42))
}

func TestJSONValueMarshalJSON(t *testing.T) {
	type wrapper struct {
		Values JSONValue `json:"values"`
	}

	b, err := json.Marshal(wrapper{Values: NewJSON(map[string]interface{}{"a": float64(1)})})
	require.NoError(t, err)
	assert.JSONEq(t, `{"values":{"a":1}}`, string(b))

	b, err = json.Marshal(wrapper{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"values":null}`, string(b))

	var decoded wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"values":{"a":1}}`), &decoded))
	assert.True(t, decoded.Values.Valid)
	assert.Equal(t, map[string]interface{}{"a": float64(1)}, decoded.Values.Object())

	require.NoError(t, json.Unmarshal([]byte(`{"values":null}`), &decoded))
	assert.False(t, decoded.Values.Valid)
}

func TestReconcileJobIsOpen(t *testing.T) {
	assert.True(t, ReconcileJob{Status: JobQueued}.IsOpen())
	assert.True(t, ReconcileJob{Status: JobRunning}.IsOpen())
	assert.False(t, ReconcileJob{Status: JobDone}.IsOpen())
	assert.False(t, ReconcileJob{Status: JobFailed}.IsOpen())
}
