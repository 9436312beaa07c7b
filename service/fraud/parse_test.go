package fraud

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	t.Run("prefers a json-tagged fence", func(t *testing.T) {
		raw := "Here is my analysis:\n```json\n{\"is_fraud\": true}\n```\nand some trailing prose {\"decoy\": 1}"
		got, err := ExtractJSON(raw)
		require.NoError(t, err)
		assert.Equal(t, `{"is_fraud": true}`, got)
	})

	t.Run("falls back to any fence", func(t *testing.T) {
		raw := "```\n{\"quality_score\": 0.8}\n```"
		got, err := ExtractJSON(raw)
		require.NoError(t, err)
		assert.Equal(t, `{"quality_score": 0.8}`, got)
	})

	t.Run("falls back to the outermost brace pair", func(t *testing.T) {
		raw := `Sure! The result is {"a": {"b": 1}} hope that helps`
		got, err := ExtractJSON(raw)
		require.NoError(t, err)
		assert.Equal(t, `{"a": {"b": 1}}`, got)
	})

	t.Run("trims surrounding whitespace", func(t *testing.T) {
		got, err := ExtractJSON("  \n {\"x\": 1} \n ")
		require.NoError(t, err)
		assert.Equal(t, `{"x": 1}`, got)
	})

	t.Run("errors when no object is present", func(t *testing.T) {
		_, err := ExtractJSON("I could not analyze this image.")
		assert.ErrorIs(t, err, ErrNoJSON)
	})

	t.Run("errors on a lone brace", func(t *testing.T) {
		_, err := ExtractJSON("{ incomplete")
		assert.ErrorIs(t, err, ErrNoJSON)
	})
}

func TestParseObject(t *testing.T) {
	t.Run("parses a fenced object", func(t *testing.T) {
		obj, err := parseObject("```json\n{\"score\": 0.4}\n```")
		require.NoError(t, err)
		assert.Equal(t, 0.4, obj["score"])
	})

	t.Run("errors on malformed JSON inside braces", func(t *testing.T) {
		_, err := parseObject(`{"score": not valid}`)
		assert.Error(t, err)
	})
}

func TestCoercionHelpers(t *testing.T) {
	t.Run("asFloat", func(t *testing.T) {
		assert.Equal(t, 0.7, asFloat(0.7, 0))
		assert.Equal(t, 0.7, asFloat("0.7", 0))
		assert.Equal(t, 1.0, asFloat(true, 0))
		assert.Equal(t, 0.0, asFloat(false, 0.5))
		assert.Equal(t, 0.5, asFloat(nil, 0.5))
		assert.Equal(t, 0.5, asFloat("not a number", 0.5))
	})

	t.Run("asBool", func(t *testing.T) {
		assert.True(t, asBool(true, false))
		assert.True(t, asBool("True", false))
		assert.True(t, asBool(1.0, false))
		assert.False(t, asBool(0.0, true))
		assert.True(t, asBool(nil, true))
		assert.False(t, asBool("maybe", false))
	})

	t.Run("asString", func(t *testing.T) {
		assert.Equal(t, "hi", asString("hi", "def"))
		assert.Equal(t, "def", asString(42, "def"))
		assert.Equal(t, "def", asString(nil, "def"))
	})

	t.Run("asStringSlice keeps only strings", func(t *testing.T) {
		got := asStringSlice([]interface{}{"a", 1, "b", nil})
		assert.Equal(t, []string{"a", "b"}, got)
		assert.Equal(t, []string{}, asStringSlice("not a slice"))
		assert.Equal(t, []string{}, asStringSlice(nil))
	})

	t.Run("clamp01", func(t *testing.T) {
		assert.Equal(t, 0.0, clamp01(-0.2))
		assert.Equal(t, 0.5, clamp01(0.5))
		assert.Equal(t, 1.0, clamp01(1.7))
	})
}
