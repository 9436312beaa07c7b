package fraud

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoJSON is returned when no JSON object can be located in a model response
var ErrNoJSON = errors.New("no JSON object found in response")

var (
	fencedJSONBlock = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	fencedAnyBlock  = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\\s*(.*?)```")
)

// ExtractJSON pulls a JSON object out of a model response. Models wrap their
// output unpredictably, so extraction is lenient: a json-tagged fence wins,
// then any fence, then the outermost brace pair of the raw text.
func ExtractJSON(raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	candidate := raw
	if m := fencedJSONBlock.FindStringSubmatch(raw); m != nil {
		candidate = strings.TrimSpace(m[1])
	} else if m := fencedAnyBlock.FindStringSubmatch(raw); m != nil {
		candidate = strings.TrimSpace(m[1])
	}

	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start < 0 || end <= start {
		return "", ErrNoJSON
	}

	return candidate[start : end+1], nil
}

// parseObject extracts and unmarshals a JSON object from a model response
func parseObject(raw string) (map[string]interface{}, error) {
	text, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}
	obj := map[string]interface{}{}
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// The coercion helpers below implement per-field safe defaults: a field of
// the wrong type falls back to def instead of failing the whole response.

func asFloat(v interface{}, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	case bool:
		if n {
			return 1
		}
		return 0
	}
	return def
}

func asBool(v interface{}, def bool) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(strings.ToLower(b)); err == nil {
			return parsed
		}
	case float64:
		return b != 0
	}
	return def
}

func asString(v interface{}, def string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

func asStringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func asObject(v interface{}) map[string]interface{} {
	if obj, ok := v.(map[string]interface{}); ok {
		return obj
	}
	return nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
