package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrictRoundTrip(t *testing.T) {
	// Layer 1 must hand back the exact text, not a re-marshaled copy, so
	// nested structure, key order, and number precision survive untouched.
	input := `{"coding_accuracy_score":{"sutherland_score":0.8500000000000001,"ai_score":0.9},"analysis":[{"ai_code":null}]}`

	result, err := Parse(input, nil)
	require.NoError(t, err)
	assert.Equal(t, LayerStrict, result.Layer)
	assert.Equal(t, input, string(result.JSON))
	assert.Equal(t, input, result.Raw)
}

func TestParseStrictWithWhitespace(t *testing.T) {
	result, err := Parse("\n  [{\"code\": \"Z98890\"}]\n", nil)
	require.NoError(t, err)
	assert.Equal(t, LayerStrict, result.Layer)
	assert.Equal(t, `[{"code": "Z98890"}]`, string(result.JSON))
}

func TestParseRejectsBareScalar(t *testing.T) {
	// Valid JSON, but not an object or array; stages never want a scalar.
	_, err := Parse(`"match"`, nil)
	assert.ErrorIs(t, err, ErrUnparsable)
}

func TestParseBracketSubstring(t *testing.T) {
	input := `The verdict is {"status": "match", "severity": "minor"} as requested.`

	result, err := Parse(input, nil)
	require.NoError(t, err)
	assert.Equal(t, LayerBracket, result.Layer)
	assert.Equal(t, `{"status": "match", "severity": "minor"}`, string(result.JSON))
}

func TestParseFencedWithLeadingProse(t *testing.T) {
	input := "Here is my analysis:\n```json\n{\"is_ai_correct\": true}\n```"

	result, err := Parse(input, nil)
	require.NoError(t, err)
	assert.Equal(t, LayerBracket, result.Layer)

	var decoded map[string]bool
	require.NoError(t, json.Unmarshal(result.JSON, &decoded))
	assert.True(t, decoded["is_ai_correct"])
}

func TestParseCleanedFence(t *testing.T) {
	// Braces in the prose defeat the bracket slice; the fenced block with
	// its trailing comma repaired is the recoverable payload.
	input := "Sure! The JSON {below} has what you need:\n```json\n{\"patient_id\": \"123\", \"overall_assessment\": \"solid\",}\n```"

	result, err := Parse(input, nil)
	require.NoError(t, err)
	assert.Equal(t, LayerCleaned, result.Layer)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(result.JSON, &decoded))
	assert.Equal(t, "123", decoded["patient_id"])
	assert.Equal(t, "solid", decoded["overall_assessment"])
}

func TestParseFieldExtraction(t *testing.T) {
	input := `patient_id: 2664438, "is_sutherland_correct": false
severity: "moderate" and coding_accuracy_score: {"sutherland_score": 0.0, "ai_score": 0.0,}
with analysis: [{"sutherland_code": "Z98890", "ai_code": null}]`

	fields := []Field{
		{Name: "patient_id", Kind: KindString},
		{Name: "is_sutherland_correct", Kind: KindBool},
		{Name: "severity", Kind: KindString},
		{Name: "coding_accuracy_score", Kind: KindObject},
		{Name: "analysis", Kind: KindArray},
		{Name: "overall_assessment", Kind: KindString},
	}

	result, err := Parse(input, fields)
	require.NoError(t, err)
	assert.Equal(t, LayerFields, result.Layer)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(result.JSON, &decoded))

	assert.JSONEq(t, `"2664438"`, string(decoded["patient_id"]))
	assert.JSONEq(t, `false`, string(decoded["is_sutherland_correct"]))
	assert.JSONEq(t, `"moderate"`, string(decoded["severity"]))
	assert.JSONEq(t, `{"sutherland_score": 0.0, "ai_score": 0.0}`, string(decoded["coding_accuracy_score"]))
	assert.JSONEq(t, `[{"sutherland_code": "Z98890", "ai_code": null}]`, string(decoded["analysis"]))

	// Absent fields stay absent; recovery never invents a value.
	_, fabricated := decoded["overall_assessment"]
	assert.False(t, fabricated)
}

func TestParseFieldExtractionNull(t *testing.T) {
	input := `broken { "ai_code": null, "sutherland_code": "Z98890" trailing}garbage}`

	fields := []Field{
		{Name: "ai_code", Kind: KindString},
		{Name: "sutherland_code", Kind: KindString},
	}

	result, err := Parse(input, fields)
	require.NoError(t, err)
	assert.Equal(t, LayerFields, result.Layer)

	var decoded map[string]*string
	require.NoError(t, json.Unmarshal(result.JSON, &decoded))
	assert.Nil(t, decoded["ai_code"])
	require.NotNil(t, decoded["sutherland_code"])
	assert.Equal(t, "Z98890", *decoded["sutherland_code"])
}

func TestParseFieldNameBoundary(t *testing.T) {
	// "code" must not match the tail of "sutherland_code".
	input := `unterminated {"sutherland_code": "A123"`

	_, err := Parse(input, []Field{{Name: "code", Kind: KindString}})
	assert.ErrorIs(t, err, ErrUnparsable)

	result, err := Parse(input, []Field{{Name: "sutherland_code", Kind: KindString}})
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(result.JSON, &decoded))
	assert.Equal(t, "A123", decoded["sutherland_code"])
}

func TestParseFieldExtractionNestedValue(t *testing.T) {
	// The object value contains a brace inside a string and a nested
	// object; the scan must carve the whole value, not stop early.
	input := `result: {"note": "brace } inside", "nested": {"scores": [1, 2]}} trailing}`

	result, err := Parse(input, []Field{{Name: "result", Kind: KindObject}})
	require.NoError(t, err)
	assert.Equal(t, LayerFields, result.Layer)

	var decoded map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(result.JSON, &decoded))
	assert.JSONEq(t, `"brace } inside"`, string(decoded["result"]["note"]))
	assert.JSONEq(t, `{"scores": [1, 2]}`, string(decoded["result"]["nested"]))
}

func TestParseUnparsable(t *testing.T) {
	input := "I'm sorry, I cannot review this chart."

	fields := []Field{{Name: "patient_id", Kind: KindString}}
	result, err := Parse(input, fields)

	require.ErrorIs(t, err, ErrUnparsable)
	assert.Equal(t, LayerNone, result.Layer)
	assert.Nil(t, result.JSON)
	assert.Equal(t, input, result.Raw)
}

func TestParseEmpty(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\t"} {
		_, err := Parse(input, nil)
		assert.ErrorIs(t, err, ErrUnparsable)
	}
}

func TestLayerString(t *testing.T) {
	assert.Equal(t, "strict", LayerStrict.String())
	assert.Equal(t, "bracket", LayerBracket.String())
	assert.Equal(t, "cleaned", LayerCleaned.String())
	assert.Equal(t, "fields", LayerFields.String())
	assert.Equal(t, "none", LayerNone.String())
}
