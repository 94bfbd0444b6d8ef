package values

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/chartfarm/chartfarm/pkg/app"
)

// DeepMerge merges two JSON-like values. Objects are merged recursively on
// keys; for every other combination the override replaces the base. Arrays
// are replaced, never concatenated. Inputs are not mutated.
func DeepMerge(base, override interface{}) interface{} {
	baseMap, baseOK := base.(map[string]interface{})
	overrideMap, overrideOK := override.(map[string]interface{})
	if !baseOK || !overrideOK {
		return deepCopy(override)
	}

	merged := make(map[string]interface{}, len(baseMap)+len(overrideMap))
	for k, v := range baseMap {
		merged[k] = deepCopy(v)
	}
	for k, v := range overrideMap {
		if existing, ok := merged[k]; ok {
			merged[k] = DeepMerge(existing, v)
		} else {
			merged[k] = deepCopy(v)
		}
	}
	return merged
}

// MergeScoped composes the final values document: template defaults first,
// then the user delta scoped under a top-level "user" key, then system
// overrides. System wins everywhere; the user delta wins over defaults
// within the user subtree only.
func MergeScoped(defaults, userDelta, systemOverrides map[string]interface{}) map[string]interface{} {
	merged := map[string]interface{}{}
	if defaults != nil {
		merged = DeepMerge(merged, defaults).(map[string]interface{})
	}
	if userDelta != nil {
		merged = DeepMerge(merged, map[string]interface{}{"user": userDelta}).(map[string]interface{})
	}
	if systemOverrides != nil {
		merged = DeepMerge(merged, systemOverrides).(map[string]interface{})
	}
	return merged
}

// ValidateUserValues validates the user-scoped delta against the
// properties.user subschema. Absent user values always pass. A non-empty
// delta against a schema without properties.user is an integrity error.
func ValidateUserValues(userValues, schema map[string]interface{}) error {
	if userValues == nil {
		return nil
	}
	userSchema, err := extractUserSubschema(schema)
	if err != nil {
		return err
	}
	if userSchema == nil {
		if len(userValues) > 0 {
			return app.NewIntegrity("template does not define values_schema_json.properties.user")
		}
		return nil
	}
	return validate(userValues, userSchema, "user values are invalid")
}

// ValidateMergedValues validates the fully merged document against the full
// template schema.
func ValidateMergedValues(merged, schema map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	return validate(merged, schema, "merged values are invalid")
}

func extractUserSubschema(schema map[string]interface{}) (map[string]interface{}, error) {
	if schema == nil {
		return nil, nil
	}
	properties, ok := schema["properties"]
	if !ok || properties == nil {
		return nil, nil
	}
	propertiesMap, ok := properties.(map[string]interface{})
	if !ok {
		return nil, app.NewIntegrity("values_schema_json.properties must be an object")
	}
	userSchema, ok := propertiesMap["user"]
	if !ok || userSchema == nil {
		return nil, nil
	}
	userSchemaMap, ok := userSchema.(map[string]interface{})
	if !ok {
		return nil, app.NewIntegrity("values_schema_json.properties.user must be an object")
	}
	return userSchemaMap, nil
}

func validate(document, schema map[string]interface{}, message string) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(document),
	)
	if err != nil {
		return app.NewIntegrity("values schema is invalid: %s", err)
	}
	if result.Valid() {
		return nil
	}
	reasons := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		reasons = append(reasons, desc.String())
	}
	return app.NewIntegrity("%s: %s", message, strings.Join(reasons, "; "))
}

func deepCopy(value interface{}) interface{} {
	switch typed := value.(type) {
	case map[string]interface{}:
		copied := make(map[string]interface{}, len(typed))
		for k, v := range typed {
			copied[k] = deepCopy(v)
		}
		return copied
	case []interface{}:
		copied := make([]interface{}, len(typed))
		for i, v := range typed {
			copied[i] = deepCopy(v)
		}
		return copied
	default:
		return typed
	}
}
