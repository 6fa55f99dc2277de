package tools

import (
	"encoding/json"
	"strings"
)

// ParseArgs decodes a JSON argument string into v. Unknown fields are
// rejected so the model gets a clear error instead of silent drops.
func ParseArgs(jsonStr string, v any) error {
	if strings.TrimSpace(jsonStr) == "" {
		jsonStr = "{}"
	}
	decoder := json.NewDecoder(strings.NewReader(jsonStr))
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// splitLines splits a string into lines, handling both \n and \r\n endings.
func splitLines(s string) []string {
	var lines []string
	start := 0

	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if i > 0 && s[i-1] == '\r' {
				lines = append(lines, s[start:i-1])
			} else {
				lines = append(lines, s[start:i])
			}
			start = i + 1
		}
	}

	if start < len(s) {
		lines = append(lines, s[start:])
	}

	return lines
}
