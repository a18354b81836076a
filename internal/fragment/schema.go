package fragment

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// exSchema describes the wire form of one exception type.
const exSchema = `{
  "type": "object",
  "required": ["USR"],
  "properties": {
    "USR": {"type": "string"},
    "Loc": {"type": "string"},
    "Parent": {"type": ["array", "null"], "items": {"type": "string"}}
  }
}`

// ICGSchema validates a call-graph fragment: an array of function records.
var ICGSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["USR", "SName"],
    "properties": {
      "USR": {"type": "string"},
      "SName": {"type": "string"},
      "Loc": {"type": "string"},
      "Tag": {"type": "string"},
      "DirectThrow": {"type": ["array", "null"], "items": ` + exSchema + `},
      "Throw": {"type": ["array", "null"], "items": ` + exSchema + `},
      "CallSite": {
        "type": ["array", "null"],
        "items": {
          "type": "object",
          "required": ["USR"],
          "properties": {
            "USR": {"type": "string"},
            "SName": {"type": "string"},
            "Loc": {"type": "string"},
            "Expand": {"type": "string"},
            "Catch": {"type": ["array", "null"], "items": ` + exSchema + `}
          }
        }
      },
      "Caller": {"type": ["array", "null"], "items": {"type": "string"}}
    }
  }
}`

// IPMSchema validates a polymorph fragment: an array of class records.
var IPMSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "Name": {"type": "string"},
      "SName": {"type": "string"},
      "Method": {
        "type": ["array", "null"],
        "items": {
          "type": "object",
          "required": ["Name"],
          "properties": {
            "Name": {"type": "string"},
            "SName": {"type": "string"},
            "Override": {
              "type": ["array", "null"],
              "items": {
                "type": "object",
                "required": ["Name"],
                "properties": {
                  "Name": {"type": "string"},
                  "SName": {"type": "string"}
                }
              }
            }
          }
        }
      }
    }
  }
}`

// ValidateSchema checks a raw fragment payload against the given schema.
// Used in strict mode, where a nonconforming extractor output fails the TU
// before any merge happens.
func ValidateSchema(data []byte, schemaJSON string) error {
	schema := gojsonschema.NewStringLoader(schemaJSON)
	document := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schema, document)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		details = append(details, resultErr.String())
	}

	return fmt.Errorf("%w: %s", ErrMalformed, strings.Join(details, "; "))
}
