package rule

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type schemaRule struct {
	name   string
	schema *gojsonschema.Schema
}

// JSONSchema compiles schema (a JSON Schema document) into a rule that
// validates payloads against it. The schema is compiled once, at
// construction.
func JSONSchema(name, schema string) (Rule, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &schemaRule{name: name, schema: compiled}, nil
}

func (r *schemaRule) Name() string { return r.name }

func (r *schemaRule) Check(payload []byte) error {
	result, err := r.schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("schema validation system error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var b strings.Builder
	b.WriteString("schema validation failed: ")
	for _, desc := range result.Errors() {
		fmt.Fprintf(&b, "- %s; ", desc)
	}
	return fmt.Errorf("%s", strings.TrimSuffix(b.String(), " "))
}
