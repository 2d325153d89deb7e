package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderSchema = `{
	"type": "object",
	"required": ["id", "status"],
	"properties": {
		"id": {"type": "integer"},
		"status": {"type": "string"}
	}
}`

func TestJSONSchemaValidPayload(t *testing.T) {
	r, err := JSONSchema("order-shape", orderSchema)
	require.NoError(t, err)
	assert.Equal(t, "order-shape", r.Name())

	assert.NoError(t, r.Check([]byte(`{"id": 1, "status": "new"}`)))
}

func TestJSONSchemaViolations(t *testing.T) {
	r, err := JSONSchema("order-shape", orderSchema)
	require.NoError(t, err)

	err = r.Check([]byte(`{"id": "not-a-number"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation failed")
	assert.Contains(t, err.Error(), "status")
}

func TestJSONSchemaMalformedPayload(t *testing.T) {
	r, err := JSONSchema("order-shape", orderSchema)
	require.NoError(t, err)

	err = r.Check([]byte(`{not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "system error")
}

func TestJSONSchemaBadSchemaRejectedAtConstruction(t *testing.T) {
	_, err := JSONSchema("broken", `{"type": ["unclosed"`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile schema broken")
}
