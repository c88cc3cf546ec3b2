package generator

import (
	"encoding/json"
	"strings"
)

type threadPayload struct {
	MainPost string   `json:"mainPost"`
	Thread   []string `json:"thread"`
}

// parseThread extracts {mainPost, thread[]} from a model response. Models
// wrap JSON in code fences or prose often enough that we scan for the first
// balanced object; anything unparsable falls back to the raw text as a
// single post.
func parseThread(raw string) (string, []string) {
	raw = strings.TrimSpace(raw)

	candidate := extractJSONObject(raw)
	if candidate != "" {
		var payload threadPayload
		if err := json.Unmarshal([]byte(candidate), &payload); err == nil {
			main := strings.TrimSpace(payload.MainPost)
			if main != "" {
				var thread []string
				for _, segment := range payload.Thread {
					if s := strings.TrimSpace(segment); s != "" {
						thread = append(thread, s)
					}
				}
				return main, thread
			}
		}
	}

	return stripCodeFence(raw), nil
}

// extractJSONObject returns the first balanced {...} in s, or "".
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
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
				return s[start : i+1]
			}
		}
	}
	return ""
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
