package core

import (
	"encoding/json"
	"strings"
)

// ExtractJSON pulls a JSON payload out of a collaborator reply. Replies are
// free text; the payload may be the whole reply, a ```json fenced block, or
// embedded in surrounding prose. Returns the raw payload bytes, or a
// planning error when no valid JSON can be found.
func ExtractJSON(reply string) ([]byte, error) {
	trimmed := strings.TrimSpace(reply)
	if json.Valid([]byte(trimmed)) && trimmed != "" {
		return []byte(trimmed), nil
	}

	if block, ok := fencedBlock(trimmed); ok {
		if json.Valid([]byte(block)) {
			return []byte(block), nil
		}
	}

	// Last resort: widest brace span.
	start := strings.IndexAny(trimmed, "{[")
	end := strings.LastIndexAny(trimmed, "}]")
	if start >= 0 && end > start {
		span := trimmed[start : end+1]
		if json.Valid([]byte(span)) {
			return []byte(span), nil
		}
	}

	return nil, ErrPlanningFormat("reply does not contain a JSON payload")
}

func fencedBlock(s string) (string, bool) {
	for _, marker := range []string{"```json", "```"} {
		idx := strings.Index(s, marker)
		if idx < 0 {
			continue
		}
		rest := s[idx+len(marker):]
		closing := strings.Index(rest, "```")
		if closing < 0 {
			continue
		}
		return strings.TrimSpace(rest[:closing]), true
	}
	return "", false
}
