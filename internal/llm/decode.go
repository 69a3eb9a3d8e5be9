package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stripJSONFence removes a surrounding ```json ... ``` fence if present.
// Models occasionally wrap JSON output in markdown fences even when asked
// for a raw JSON response.
func stripJSONFence(text string) string {
	stripped := strings.TrimSpace(text)
	if !strings.HasPrefix(stripped, "```") {
		return stripped
	}
	stripped = strings.TrimSpace(stripped[3:])
	if strings.HasPrefix(strings.ToLower(stripped), "json") {
		stripped = strings.TrimSpace(stripped[4:])
	}
	if idx := strings.LastIndex(stripped, "```"); idx >= 0 {
		stripped = stripped[:idx]
	}
	return strings.TrimSpace(stripped)
}

// decodeObject decodes a model response into a generic object, tolerating
// markdown fences and leading/trailing prose around the JSON body.
func decodeObject(raw string) (map[string]any, error) {
	cleaned := stripJSONFence(raw)

	var m map[string]any
	if err := json.Unmarshal([]byte(cleaned), &m); err == nil {
		return m, nil
	}

	// Second chance: take the outermost braces and try again.
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &m); err == nil {
			return m, nil
		}
	}

	return nil, fmt.Errorf("response is not a JSON object")
}
