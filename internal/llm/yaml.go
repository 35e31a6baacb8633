package llm

import "strings"

// ExtractYAML strips the markdown code fences models sometimes wrap around
// YAML answers despite instructions. Everything before the first fence and
// after the closing fence is discarded; unfenced text passes through.
func ExtractYAML(text string) string {
	text = strings.TrimSpace(text)

	start := strings.Index(text, "```")
	if start < 0 {
		return text
	}

	body := text[start+3:]
	// Opening fences may carry a language tag
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		tag := strings.TrimSpace(body[:nl])
		if tag == "" || tag == "yaml" || tag == "yml" {
			body = body[nl+1:]
		}
	}

	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}
