// Package json provides JSON extraction utilities for parsing LLM responses.
//
// Backends often return JSON embedded in prose or wrapped in markdown code
// fences. This package pulls the JSON object back out of such responses.
package json

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractObjectWithKey finds the first JSON object in response that parses
// and contains the given top-level key, and unmarshals it into result.
//
// Candidates are balanced-brace spans scanned left to right, with string
// literals and escapes respected, so a response containing several
// JSON-looking objects resolves deterministically to the first one that
// both parses and carries the key. Markdown code fences are stripped first.
func ExtractObjectWithKey(response, key string, result interface{}) error {
	response = stripMarkdownCodeBlocks(response)

	for start := 0; ; {
		open := strings.IndexByte(response[start:], '{')
		if open < 0 {
			break
		}
		open += start

		candidate, ok := balancedObject(response[open:])
		if !ok {
			// Unterminated object; nothing later can balance either.
			break
		}

		var probe map[string]json.RawMessage
		if err := json.Unmarshal([]byte(candidate), &probe); err == nil {
			if _, hasKey := probe[key]; hasKey {
				if err := json.Unmarshal([]byte(candidate), result); err != nil {
					return fmt.Errorf("failed to unmarshal extracted object: %w", err)
				}
				return nil
			}
			// Valid object without the key: skip past it entirely.
			start = open + len(candidate)
			continue
		}
		start = open + 1
	}

	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return fmt.Errorf("no JSON object with key %q in response: %q", key, preview)
}

// balancedObject returns the shortest balanced {...} span at the start of s.
func balancedObject(s string) (string, bool) {
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

// stripMarkdownCodeBlocks removes code fence markers from a response.
// Handles ```json\n...\n``` and plain ``` fences.
func stripMarkdownCodeBlocks(response string) string {
	trimmed := strings.TrimSpace(response)

	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```json"))
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	}

	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}

	return trimmed
}
