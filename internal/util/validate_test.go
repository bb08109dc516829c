package util

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateParameters_RequiredMissing(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
		},
		"required": []any{"x"},
	}

	err := ValidateParameters(map[string]any{}, schema)
	require.Error(t, err)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "x", vErr.Field)

	assert.NoError(t, ValidateParameters(map[string]any{"x": 5}, schema))
}

func TestValidateParameters_TypeMismatch(t *testing.T) {
	schema := map[string]any{
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
		},
		"required": []string{"name"},
	}
	assert.Error(t, ValidateParameters(map[string]any{"name": 42}, schema))
	assert.NoError(t, ValidateParameters(map[string]any{"name": "ok"}, schema))
}

func TestValidateParameters_IntegerFromJSON(t *testing.T) {
	schema := map[string]any{
		"properties": map[string]any{
			"n": map[string]any{"type": "integer"},
		},
	}
	// JSON decoding yields float64 for numbers.
	assert.NoError(t, ValidateParameters(map[string]any{"n": float64(3)}, schema))
	assert.Error(t, ValidateParameters(map[string]any{"n": 3.5}, schema))
}

func TestValidateParameters_ExtraFieldsAllowed(t *testing.T) {
	schema := map[string]any{"properties": map[string]any{}}
	assert.NoError(t, ValidateParameters(map[string]any{"anything": true}, schema))
}

func TestMarshalCanonical(t *testing.T) {
	assert.JSONEq(t, `{"a":1}`, string(MarshalCanonical(map[string]int{"a": 1})))
	assert.Equal(t, `"text"`, string(MarshalCanonical("text")))
}

func TestPrettyJSON(t *testing.T) {
	pretty := PrettyJSON(json.RawMessage(`{"a":1}`))
	assert.Contains(t, pretty, "\n")
	assert.Equal(t, "not json", PrettyJSON(json.RawMessage("not json")))
}
