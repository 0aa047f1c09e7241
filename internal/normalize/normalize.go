// Package normalize turns raw model output into parsed JSON. Models are not
// reliable JSON emitters, so parsing is layered: each layer tolerates more
// damage than the last, and the first success wins. No layer invents data; a
// field that cannot be recovered stays absent rather than guessed, and a text
// that defeats every layer is preserved raw for inspection.
package normalize

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrUnparsable reports that no layer could recover a JSON structure.
var ErrUnparsable = errors.New("no JSON structure recoverable from response")

// Layer identifies which recovery layer produced a result.
type Layer int

const (
	LayerNone Layer = iota
	LayerStrict
	LayerBracket
	LayerCleaned
	LayerFields
)

func (l Layer) String() string {
	switch l {
	case LayerStrict:
		return "strict"
	case LayerBracket:
		return "bracket"
	case LayerCleaned:
		return "cleaned"
	case LayerFields:
		return "fields"
	default:
		return "none"
	}
}

// Result is the outcome of normalizing one response. JSON is populated on
// success; Raw always carries the original text so failures stay auditable.
type Result struct {
	JSON  json.RawMessage
	Raw   string
	Layer Layer
}

var (
	fenceRE         = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)```")
	trailingCommaRE = regexp.MustCompile(`,\s*([}\]])`)
)

// Parse recovers a JSON object or array from raw model output. Layers are
// tried in order of escalating tolerance:
//
//  1. strict parse of the trimmed text
//  2. the substring between the first opening bracket and the last closer
//  3. parse after stripping code fences, surrounding prose, trailing commas
//  4. per-field extraction against the expected fields, rebuilding an object
//
// When every layer fails the raw text is preserved in the Result and
// ErrUnparsable is returned.
func Parse(raw string, fields []Field) (Result, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Result{Raw: raw}, ErrUnparsable
	}

	if isStructure(trimmed) {
		return Result{JSON: json.RawMessage(trimmed), Raw: raw, Layer: LayerStrict}, nil
	}

	if sub, ok := bracketSlice(trimmed); ok && isStructure(sub) {
		return Result{JSON: json.RawMessage(sub), Raw: raw, Layer: LayerBracket}, nil
	}

	if cleaned, ok := cleanArtifacts(trimmed); ok {
		return Result{JSON: json.RawMessage(cleaned), Raw: raw, Layer: LayerCleaned}, nil
	}

	if rebuilt, ok := extractFields(trimmed, fields); ok {
		return Result{JSON: rebuilt, Raw: raw, Layer: LayerFields}, nil
	}

	return Result{Raw: raw}, ErrUnparsable
}

// isStructure reports whether s is a complete JSON object or array. Bare
// scalars are rejected; stages always expect a structure.
func isStructure(s string) bool {
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return false
	}
	return json.Valid([]byte(s))
}

// bracketSlice cuts the substring between the first opening bracket and the
// last matching closer.
func bracketSlice(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}

	closer := "}"
	if s[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(s, closer)
	if end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// cleanArtifacts strips the wrappers models habitually add: markdown code
// fences, prose before and after the payload, and trailing commas. Fenced
// blocks are tried first since the fence marks the model's own idea of where
// the payload is.
func cleanArtifacts(s string) (string, bool) {
	var candidates []string
	for _, m := range fenceRE.FindAllStringSubmatch(s, -1) {
		candidates = append(candidates, m[1])
	}

	stripped := strings.ReplaceAll(s, "```json", "")
	stripped = strings.ReplaceAll(stripped, "```", "")
	candidates = append(candidates, stripped)

	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if sub, ok := bracketSlice(candidate); ok {
			candidate = sub
		}
		candidate = trailingCommaRE.ReplaceAllString(candidate, "$1")
		if isStructure(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// extractFields rebuilds a best-effort object by locating each expected
// field directly in the text. Fields that cannot be located are left absent.
func extractFields(s string, fields []Field) (json.RawMessage, bool) {
	if len(fields) == 0 {
		return nil, false
	}

	var buf strings.Builder
	buf.WriteByte('{')
	found := 0
	for _, f := range fields {
		value, ok := f.locate(s)
		if !ok {
			continue
		}
		if found > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, false
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
		found++
	}
	buf.WriteByte('}')

	if found == 0 {
		return nil, false
	}
	out := json.RawMessage(buf.String())
	if !json.Valid(out) {
		return nil, false
	}
	return out, true
}
