package normalize

import (
	"encoding/json"
	"regexp"
)

// FieldKind selects the extraction pattern for one expected field.
type FieldKind string

const (
	KindString FieldKind = "string"
	KindBool   FieldKind = "bool"
	KindNumber FieldKind = "number"
	KindObject FieldKind = "object"
	KindArray  FieldKind = "array"
)

// Field names one top-level field a stage expects in the response, used by
// the field-extraction layer to rebuild a damaged object piece by piece.
type Field struct {
	Name string
	Kind FieldKind
}

var (
	stringValueRE = regexp.MustCompile(`^"(?:[^"\\]|\\.)*"`)
	bareValueRE   = regexp.MustCompile(`^[^",}\]\s]+`)
	boolValueRE   = regexp.MustCompile(`^(?:true|false)\b`)
	numberValueRE = regexp.MustCompile(`^-?\d+(?:\.\d+)?(?:[eE][+-]?\d+)?`)
	nullValueRE   = regexp.MustCompile(`^null\b`)
)

// locate finds the field's first occurrence in the text and carves out its
// value as raw JSON. The key may appear with or without quotes.
func (f Field) locate(s string) (json.RawMessage, bool) {
	re, err := regexp.Compile(`(?i)"?\b` + regexp.QuoteMeta(f.Name) + `\b"?\s*:\s*`)
	if err != nil {
		return nil, false
	}
	loc := re.FindStringIndex(s)
	if loc == nil {
		return nil, false
	}
	rest := s[loc[1]:]

	if nullValueRE.MatchString(rest) {
		return json.RawMessage("null"), true
	}

	switch f.Kind {
	case KindString:
		if m := stringValueRE.FindString(rest); m != "" {
			return json.RawMessage(m), true
		}
		// Models sometimes drop the quotes around scalar values.
		if m := bareValueRE.FindString(rest); m != "" {
			quoted, err := json.Marshal(m)
			if err != nil {
				return nil, false
			}
			return quoted, true
		}
	case KindBool:
		if m := boolValueRE.FindString(rest); m != "" {
			return json.RawMessage(m), true
		}
	case KindNumber:
		if m := numberValueRE.FindString(rest); m != "" {
			return json.RawMessage(m), true
		}
	case KindObject:
		return balanced(rest, '{', '}')
	case KindArray:
		return balanced(rest, '[', ']')
	}
	return nil, false
}

// balanced carves the value starting at s[0] up to its matching closer,
// skipping brackets inside string literals, then checks the slice actually
// parses. Trailing commas are repaired first since they are the most common
// damage inside otherwise well-formed values.
func balanced(s string, open, closer byte) (json.RawMessage, bool) {
	if len(s) == 0 || s[0] != open {
		return nil, false
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				candidate := trailingCommaRE.ReplaceAllString(s[:i+1], "$1")
				if json.Valid([]byte(candidate)) {
					return json.RawMessage(candidate), true
				}
				return nil, false
			}
		}
	}
	return nil, false
}
