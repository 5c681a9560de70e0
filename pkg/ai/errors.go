package ai

import (
	"errors"
	"fmt"
)

// ErrRateLimited indicates the AI endpoint rejected the call with a
// rate-limit status. Callers surface it separately from generic failures.
var ErrRateLimited = errors.New("ai rate limited")

// SchemaError reports model output that did not match the requested
// structured-output schema.
type SchemaError struct {
	Reason string
	Raw    string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("ai schema error: %s", e.Reason)
}

// Schema describes the JSON shape requested from the model.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
}

// Schema type names understood by the API.
const (
	TypeObject = "OBJECT"
	TypeArray  = "ARRAY"
	TypeString = "STRING"
	TypeNumber = "NUMBER"
)
