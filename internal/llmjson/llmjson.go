// Package llmjson pulls a JSON object out of free-form model output.
//
// Candidate agents and judge models frequently wrap their JSON in prose or
// markdown fences. Extraction locates the first balanced {...} span, ignoring
// braces that appear inside string literals, and decodes only that span.
package llmjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoObject is returned when the text contains no balanced JSON object.
var ErrNoObject = errors.New("llmjson: no JSON object found")

// ExtractObject returns the first balanced {...} span in text.
func ExtractObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", ErrNoObject
	}
	span := matchBraces(text[start:])
	if span == "" {
		return "", fmt.Errorf("%w: unbalanced braces", ErrNoObject)
	}
	return span, nil
}

// Decode extracts the first object from text and unmarshals it into T.
func Decode[T any](text string) (T, error) {
	var out T
	span, err := ExtractObject(text)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(span), &out); err != nil {
		return out, fmt.Errorf("llmjson: decode object: %w", err)
	}
	return out, nil
}

// matchBraces returns the prefix of s (which starts with '{') up to and
// including its matching '}', or "" when the braces never balance.
func matchBraces(s string) string {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
