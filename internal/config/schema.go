package config

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/shopspring/decimal"
)

var (
	decimalType  = reflect.TypeOf(decimal.Decimal{})
	durationType = reflect.TypeOf(time.Duration(0))
)

// ToJSONSchema converts a struct to an inline JSON schema.
// Decimals and durations are described as the strings YAML accepts for them.
func ToJSONSchema[T any](t T) (string, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = true
	r.Mapper = func(t reflect.Type) *jsonschema.Schema {
		switch t {
		case decimalType:
			return &jsonschema.Schema{
				Type:        "string",
				Pattern:     `^-?[0-9]+(\.[0-9]+)?$`,
				Description: "Decimal number",
			}
		case durationType:
			return &jsonschema.Schema{
				Type:        "string",
				Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|ms|s|m|h))+$`,
				Description: "Duration such as 60s or 12h",
			}
		}

		return nil
	}

	schema := r.Reflect(t)

	jsonSchemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(jsonSchemaBytes), nil
}

// Schema returns the JSON schema of the config file.
func Schema() (string, error) {
	return ToJSONSchema(Config{})
}
