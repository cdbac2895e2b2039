package ai

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// extractJSON pulls a JSON document out of a model response that may be
// wrapped in markdown fences or surrounded by prose. want is the opening
// delimiter, '[' or '{'.
func extractJSON(text string, want byte) (string, error) {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var closing byte
	switch want {
	case '[':
		closing = ']'
	case '{':
		closing = '}'
	default:
		return "", fmt.Errorf("unsupported delimiter %q", want)
	}

	start := strings.IndexByte(text, want)
	end := strings.LastIndexByte(text, closing)
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON document found in response")
	}
	return text[start : end+1], nil
}

// cutAtRune shortens s to at most max bytes without splitting a rune.
// Email bodies and descriptions carry accented Spanish text, so a plain
// byte slice could leave invalid UTF-8 at the cut.
func cutAtRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
