package credentials

import (
	"embed"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// schemaSet loads and caches the create-request/create-response schemas
// shipped with the service.
type schemaSet struct {
	createRequest  *gojsonschema.Schema
	createResponse *gojsonschema.Schema
}

func loadSchemas() (*schemaSet, error) {
	request, err := loadSchema("schemas/create_request.json")
	if err != nil {
		return nil, fmt.Errorf("credentials: load create_request schema: %w", err)
	}
	response, err := loadSchema("schemas/create_response.json")
	if err != nil {
		return nil, fmt.Errorf("credentials: load create_response schema: %w", err)
	}
	return &schemaSet{createRequest: request, createResponse: response}, nil
}

func loadSchema(path string) (*gojsonschema.Schema, error) {
	raw, err := schemaFS.ReadFile(path)
	if err != nil {
		return nil, err
	}
	loader := gojsonschema.NewBytesLoader(raw)
	return gojsonschema.NewSchema(loader)
}

// validate runs schema against doc (raw JSON bytes) and collapses the
// result into a single diagnostic error, or nil when doc is valid.
func validate(schema *gojsonschema.Schema, doc []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("credentials: schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}
	errs := result.Errors()
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.String())
	}
	return &ValidationError{Messages: msgs}
}

// ValidationError reports one or more JSON schema violations.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	if len(e.Messages) == 0 {
		return "credentials: validation failed"
	}
	return "credentials: " + e.Messages[0]
}
