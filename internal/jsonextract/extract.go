// Package jsonextract pulls a JSON document out of free-form coder CLI
// output, trying progressively looser strategies until one parses.
package jsonextract

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedJSONBlock = regexp.MustCompile("(?s)```json\\s*\\n(.*?)```")
var fencedPlainBlock = regexp.MustCompile("(?s)```\\s*\\n(.*?)```")

// Extract tries, in order: a ```json fenced block, a plain fenced block, the
// first balanced {...} or [...] substring, and finally the raw trimmed
// text — returning the first candidate that unmarshals into v.
func Extract(output string, v interface{}) error {
	candidates := candidates(output)
	var lastErr error
	for _, c := range candidates {
		if err := json.Unmarshal([]byte(c), v); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = errNoCandidates
	}
	return lastErr
}

var errNoCandidates = jsonExtractError("no JSON-shaped content found in output")

type jsonExtractError string

func (e jsonExtractError) Error() string { return string(e) }

func candidates(output string) []string {
	var out []string

	if m := fencedJSONBlock.FindStringSubmatch(output); m != nil {
		out = append(out, strings.TrimSpace(m[1]))
	}
	if m := fencedPlainBlock.FindStringSubmatch(output); m != nil {
		out = append(out, strings.TrimSpace(m[1]))
	}
	if balanced := firstBalanced(output); balanced != "" {
		out = append(out, balanced)
	}
	out = append(out, strings.TrimSpace(output))

	return out
}

// firstBalanced scans for the first top-level balanced {...} or [...]
// substring, respecting string literals so braces inside strings don't
// confuse the depth counter.
func firstBalanced(s string) string {
	start := -1
	var open, close byte
	depth := 0
	inString := false
	escape := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if start == -1 {
			if c == '{' || c == '[' {
				start = i
				open = c
				if c == '{' {
					close = '}'
				} else {
					close = ']'
				}
				depth = 1
			}
			continue
		}

		if inString {
			if escape {
				escape = false
			} else if c == '\\' {
				escape = true
			} else if c == '"' {
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}

	return ""
}
