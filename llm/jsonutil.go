package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

// fencePattern captures the body of a markdown code fence, any language tag.
var fencePattern = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \\t]*\\n?(.*?)```")

// ExtractJSON returns the first valid JSON value (object or array) in model
// output, after removing comments and trailing commas. Fenced code blocks are
// searched before the surrounding prose. It returns "" when there is none.
func ExtractJSON(text string) string {
	return extract(text, "{[")
}

// ExtractJSONObject is ExtractJSON restricted to objects.
func ExtractJSONObject(text string) string {
	return extract(text, "{")
}

// ExtractJSONArray is ExtractJSON restricted to arrays.
func ExtractJSONArray(text string) string {
	return extract(text, "[")
}

func extract(text, opens string) string {
	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		if v := firstValue(m[1], opens); v != "" {
			return v
		}
	}
	return firstValue(text, opens)
}

// firstValue scans for a bracket in opens, takes the balanced span starting
// there, and returns it if it cleans to valid JSON. Otherwise it resumes
// after that bracket.
func firstValue(text, opens string) string {
	for i := 0; i < len(text); i++ {
		if !strings.ContainsRune(opens, rune(text[i])) {
			continue
		}
		end := matchClose(text, i)
		if end < 0 {
			continue
		}
		if v := cleanJSON(text[i : end+1]); json.Valid([]byte(v)) {
			return v
		}
	}
	return ""
}

// matchClose returns the index of the bracket closing text[start], ignoring
// brackets inside strings and comments, or -1 if it never closes.
func matchClose(text string, start int) int {
	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		ch := text[i]
		switch {
		case inString:
			if escaped {
				escaped = false
			} else if ch == '\\' {
				escaped = true
			} else if ch == '"' {
				inString = false
			}
		case ch == '"':
			inString = true
		case ch == '/' && i+1 < len(text) && text[i+1] == '/':
			if nl := strings.IndexByte(text[i:], '\n'); nl >= 0 {
				i += nl
			} else {
				return -1
			}
		case ch == '/' && i+1 < len(text) && text[i+1] == '*':
			if e := strings.Index(text[i+2:], "*/"); e >= 0 {
				i += e + 3
			} else {
				return -1
			}
		case ch == '{':
			stack = append(stack, '}')
		case ch == '[':
			stack = append(stack, ']')
		case ch == '}' || ch == ']':
			if len(stack) == 0 || stack[len(stack)-1] != ch {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}

// cleanJSON removes // and /* */ comments and trailing commas before a
// closing bracket. String contents are left untouched.
func cleanJSON(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	inString, escaped := false, false
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			b.WriteByte(ch)
			if escaped {
				escaped = false
			} else if ch == '\\' {
				escaped = true
			} else if ch == '"' {
				inString = false
			}
			continue
		}

		switch {
		case ch == '"':
			inString = true
			b.WriteByte(ch)
		case ch == '/' && i+1 < len(raw) && raw[i+1] == '/':
			nl := strings.IndexByte(raw[i:], '\n')
			if nl < 0 {
				i = len(raw)
			} else {
				i += nl - 1
			}
		case ch == '/' && i+1 < len(raw) && raw[i+1] == '*':
			if e := strings.Index(raw[i+2:], "*/"); e >= 0 {
				i += e + 3
			} else {
				i = len(raw)
			}
		case ch == ',' && closesNext(raw[i+1:]):
			// trailing comma
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// closesNext reports whether the next significant character in s closes an
// object or array. Comments count as insignificant.
func closesNext(s string) bool {
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
		case ch == '/' && i+1 < len(s) && s[i+1] == '/':
			nl := strings.IndexByte(s[i:], '\n')
			if nl < 0 {
				return false
			}
			i += nl
		case ch == '/' && i+1 < len(s) && s[i+1] == '*':
			e := strings.Index(s[i+2:], "*/")
			if e < 0 {
				return false
			}
			i += e + 3
		default:
			return ch == '}' || ch == ']'
		}
	}
	return false
}
