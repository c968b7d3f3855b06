package resume

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// documentSchema 约束保存请求中 contact_info 与 sections 的形态，内容细节交给模板。
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["contact_info", "sections"],
  "properties": {
    "contact_info": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "location": {"type": "string"},
        "email": {"type": "string"},
        "phone": {"type": "string"},
        "linkedin": {"type": "string"},
        "social_links": {
          "type": ["array", "null"],
          "items": {
            "type": "object",
            "required": ["platform"],
            "properties": {
              "platform": {"type": "string", "minLength": 1},
              "url": {"type": "string"},
              "handle": {"type": "string"},
              "display_text": {"type": "string"}
            }
          }
        }
      }
    },
    "sections": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string"},
          "type": {"enum": ["", "text", "bulleted-list", "inline-list", "dynamic-column-list", "icon-list", "experience", "education"]}
        }
      }
    }
  }
}`

var documentSchemaLoader = gojsonschema.NewStringLoader(documentSchema)

// ValidateDocument validates a decoded save payload against the document schema.
func ValidateDocument(payload map[string]any) error {
	res, err := gojsonschema.Validate(documentSchemaLoader, gojsonschema.NewGoLoader(payload))
	if err != nil {
		return fmt.Errorf("validate document: %w", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return &SchemaError{Problems: msgs}
}

// SchemaError lists the schema violations of a payload.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return "invalid resume document: " + strings.Join(e.Problems, "; ")
}
