package parse

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Source tells where a JSON object was found.
type Source string

const (
	SourceFenced Source = "fenced"
	SourceRaw    Source = "raw"
)

// Match is a JSON object located inside free-form text.
type Match struct {
	Object Object
	Span   Span
	Source Source
}

// FindOptions configures FindJSONObject.
type FindOptions struct {
	// MarkerKeys restricts the raw (unfenced) search to objects containing at
	// least one of these keys as a quoted JSON key. Fenced blocks are accepted
	// without markers.
	MarkerKeys []string
	// RequireMarkersInFences also applies MarkerKeys to fenced blocks.
	RequireMarkersInFences bool
}

// FindJSONObject looks for the first JSON object embedded in text.
//
// Fenced code blocks are tried first, in document order. If none of them holds
// a JSON object, balanced {...} substrings containing a marker key are tried,
// outermost first. As a last resort the span from the first '{' to the last '}'
// is tried, which tolerates prose braces inside string values.
func FindJSONObject(text string, opts FindOptions) (*Match, bool) {
	for _, b := range FencedCodeBlocks(text) {
		if opts.RequireMarkersInFences && !containsMarker(b.Code, opts.MarkerKeys) {
			continue
		}
		obj, ok := DecodeObject(strings.TrimSpace(b.Code))
		if !ok {
			continue
		}
		return &Match{Object: obj, Span: Span{Start: b.Start, End: b.End}, Source: SourceFenced}, true
	}

	for _, sp := range BalancedObjects(text) {
		candidate := text[sp.Start:sp.End]
		if !containsMarker(candidate, opts.MarkerKeys) {
			continue
		}
		if obj, ok := DecodeObject(candidate); ok {
			return &Match{Object: obj, Span: sp, Source: SourceRaw}, true
		}
	}

	first := strings.IndexByte(text, '{')
	last := strings.LastIndexByte(text, '}')
	if first >= 0 && last > first {
		candidate := text[first : last+1]
		if containsMarker(candidate, opts.MarkerKeys) {
			if obj, ok := DecodeObject(candidate); ok {
				return &Match{Object: obj, Span: Span{Start: first, End: last + 1}, Source: SourceRaw}, true
			}
		}
	}

	return nil, false
}

// DecodeObject parses s as a single JSON object. Numbers are kept as json.Number.
func DecodeObject(s string) (Object, bool) {
	if s == "" || s[0] != '{' {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, false
	}
	// trailing garbage means this was not a single object
	if dec.More() {
		return nil, false
	}
	return Object(m), true
}

// BalancedObjects returns the spans of all brace-balanced {...} substrings of s,
// ordered by start offset. Braces inside JSON string literals are not counted
// once an object has been opened.
func BalancedObjects(s string) []Span {
	var spans []Span
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		if end, ok := matchBrace(s, i); ok {
			spans = append(spans, Span{Start: i, End: end})
		}
	}
	return spans
}

func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

func containsMarker(s string, markers []string) bool {
	if len(markers) == 0 {
		return true
	}
	for _, m := range markers {
		if strings.Contains(s, `"`+m+`"`) {
			return true
		}
	}
	return false
}
