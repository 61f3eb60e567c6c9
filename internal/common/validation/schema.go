// internal/common/validation/schema.go
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// slotSpecSchema constrains slot generation specs before the enumeration
// walk runs. Times are HH:MM, the weekday is an English day name, duration
// must be positive and the gap non-negative.
const slotSpecSchema = `{
	"type": "object",
	"required": ["weekday", "from", "to", "start", "end", "durationMinutes"],
	"additionalProperties": true,
	"properties": {
		"weekday": {
			"type": "string",
			"enum": ["Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"]
		},
		"from": {"type": "string"},
		"to": {"type": "string"},
		"start": {"type": "string", "pattern": "^([01][0-9]|2[0-3]):[0-5][0-9]$"},
		"end": {"type": "string", "pattern": "^([01][0-9]|2[0-3]):[0-5][0-9]$"},
		"durationMinutes": {"type": "integer", "minimum": 1},
		"gapMinutes": {"type": "integer", "minimum": 0}
	}
}`

// ValidateSlotSpec validates a slot generation spec document against the
// schema and returns a flattened description of every violation.
func ValidateSlotSpec(doc interface{}) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal slot spec: %w", err)
	}

	schemaLoader := gojsonschema.NewStringLoader(slotSpecSchema)
	docLoader := gojsonschema.NewBytesLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("slot spec schema validation: %w", err)
	}

	if result.Valid() {
		return nil
	}

	parts := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		parts = append(parts, fmt.Sprintf("%s: %s", verr.Field(), verr.Description()))
	}
	return fmt.Errorf("%s", strings.Join(parts, "; "))
}
