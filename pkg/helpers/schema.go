package helpers

import (
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
)

var schemaReflector = jsonschema.Reflector{
	Anonymous:                 true,
	AllowAdditionalProperties: false,
	DoNotReference:            true,
	ExpandedStruct:            true,
}

// SchemaJSON reflects a JSON schema from the value's type and returns it as
// compact JSON. Used to pin the response contract inside model prompts.
func SchemaJSON(v any) (string, error) {
	schema := schemaReflector.ReflectFromType(reflect.TypeOf(v))
	raw, err := json.Marshal(schema)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
