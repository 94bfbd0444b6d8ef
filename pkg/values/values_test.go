package values

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chartfarm/chartfarm/pkg/app"
)

func TestDeepMerge(t *testing.T) {
	tests := []struct {
		name     string
		base     interface{}
		override interface{}
		want     interface{}
	}{
		{
			name:     "disjoint keys union",
			base:     map[string]interface{}{"a": 1},
			override: map[string]interface{}{"b": 2},
			want:     map[string]interface{}{"a": 1, "b": 2},
		},
		{
			name: "nested objects merge recursively",
			base: map[string]interface{}{
				"app": map[string]interface{}{"replicas": 1, "image": "wiki:1"},
			},
			override: map[string]interface{}{
				"app": map[string]interface{}{"replicas": 3},
			},
			want: map[string]interface{}{
				"app": map[string]interface{}{"replicas": 3, "image": "wiki:1"},
			},
		},
		{
			name:     "explicit false wins",
			base:     map[string]interface{}{"enabled": true},
			override: map[string]interface{}{"enabled": false},
			want:     map[string]interface{}{"enabled": false},
		},
		{
			name:     "explicit null wins",
			base:     map[string]interface{}{"limit": 10},
			override: map[string]interface{}{"limit": nil},
			want:     map[string]interface{}{"limit": nil},
		},
		{
			name:     "arrays replaced not concatenated",
			base:     map[string]interface{}{"hosts": []interface{}{"a", "b"}},
			override: map[string]interface{}{"hosts": []interface{}{"c"}},
			want:     map[string]interface{}{"hosts": []interface{}{"c"}},
		},
		{
			name:     "scalar replaces object",
			base:     map[string]interface{}{"db": map[string]interface{}{"host": "x"}},
			override: map[string]interface{}{"db": "external"},
			want:     map[string]interface{}{"db": "external"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DeepMerge(tc.base, tc.override)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("merge mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDeepMergeDoesNotMutateInputs(t *testing.T) {
	base := map[string]interface{}{"a": map[string]interface{}{"x": 1}}
	override := map[string]interface{}{"a": map[string]interface{}{"y": 2}}

	merged := DeepMerge(base, override).(map[string]interface{})
	merged["a"].(map[string]interface{})["x"] = 99

	assert.Equal(t, 1, base["a"].(map[string]interface{})["x"])
	assert.NotContains(t, base["a"].(map[string]interface{}), "y")
}

func TestMergeScoped(t *testing.T) {
	defaults := map[string]interface{}{
		"replicas": 1,
		"user":     map[string]interface{}{"message": "hello", "theme": "light"},
	}
	userDelta := map[string]interface{}{"message": "hi"}
	system := map[string]interface{}{"replicas": 2}

	got := MergeScoped(defaults, userDelta, system)

	want := map[string]interface{}{
		"replicas": 2,
		"user":     map[string]interface{}{"message": "hi", "theme": "light"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merge mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeScopedNilInputs(t *testing.T) {
	got := MergeScoped(nil, nil, nil)
	assert.Equal(t, map[string]interface{}{}, got)
}

func TestMergeScopedSystemWinsInsideUserScope(t *testing.T) {
	userDelta := map[string]interface{}{"quota": 100}
	system := map[string]interface{}{"user": map[string]interface{}{"quota": 10}}

	got := MergeScoped(nil, userDelta, system)
	assert.Equal(t, 10, got["user"].(map[string]interface{})["quota"])
}

var wikiSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"replicas": map[string]interface{}{"type": "number"},
		"user": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"message": map[string]interface{}{"type": "string"},
			},
			"additionalProperties": false,
		},
	},
}

func TestValidateUserValues(t *testing.T) {
	err := ValidateUserValues(map[string]interface{}{"message": "hi"}, wikiSchema)
	require.NoError(t, err)
}

func TestValidateUserValuesNilPasses(t *testing.T) {
	require.NoError(t, ValidateUserValues(nil, wikiSchema))
	require.NoError(t, ValidateUserValues(nil, nil))
}

func TestValidateUserValuesRejectsUnknownKey(t *testing.T) {
	err := ValidateUserValues(map[string]interface{}{"admin": true}, wikiSchema)
	require.Error(t, err)
	assert.True(t, app.IsIntegrity(err))
}

func TestValidateUserValuesRejectsWrongType(t *testing.T) {
	err := ValidateUserValues(map[string]interface{}{"message": 42}, wikiSchema)
	require.Error(t, err)
	assert.True(t, app.IsIntegrity(err))
	assert.Contains(t, err.Error(), "user values are invalid")
}

func TestValidateUserValuesWithoutUserSubschema(t *testing.T) {
	schema := map[string]interface{}{"type": "object"}

	require.NoError(t, ValidateUserValues(map[string]interface{}{}, schema))

	err := ValidateUserValues(map[string]interface{}{"message": "hi"}, schema)
	require.Error(t, err)
	assert.True(t, app.IsIntegrity(err))
}

func TestValidateMergedValues(t *testing.T) {
	merged := MergeScoped(
		map[string]interface{}{"replicas": float64(1)},
		map[string]interface{}{"message": "hi"},
		nil,
	)
	require.NoError(t, ValidateMergedValues(merged, wikiSchema))
}

func TestValidateMergedValuesFailure(t *testing.T) {
	err := ValidateMergedValues(map[string]interface{}{"replicas": "three"}, wikiSchema)
	require.Error(t, err)
	assert.True(t, app.IsIntegrity(err))
	assert.Contains(t, err.Error(), "merged values are invalid")
}

func TestValidateMergedValuesNilSchemaPasses(t *testing.T) {
	require.NoError(t, ValidateMergedValues(map[string]interface{}{"anything": true}, nil))
}
