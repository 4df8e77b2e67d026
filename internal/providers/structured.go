package providers

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeStructured parses model output expected to be JSON. It tries a
// strict parse first; on failure it strips surrounding code-fence markers
// and whitespace and retries once. A second failure is a hard
// ErrMalformedOutput, never a silent default.
func DecodeStructured(text string, v any) error {
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	stripped := stripCodeFence(text)
	if err := json.Unmarshal([]byte(stripped), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

// stripCodeFence removes a surrounding markdown code fence, including an
// optional language tag on the opening fence.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	// Drop the language tag (e.g. "json") up to the first newline.
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		firstLine := strings.TrimSpace(text[:idx])
		if len(firstLine) <= 16 && !strings.ContainsAny(firstLine, "{[") {
			text = text[idx+1:]
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
