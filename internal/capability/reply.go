// Package capability holds helpers shared by the handover capabilities.
package capability

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripCodeFences removes Markdown code fences the text generator sometimes
// wraps around JSON despite being told not to.
func StripCodeFences(reply string) string {
	reply = strings.ReplaceAll(reply, "```json", "")
	reply = strings.ReplaceAll(reply, "```", "")
	return strings.TrimSpace(reply)
}

// DecodeReply strips fences from reply and decodes the JSON object into v.
func DecodeReply(reply string, v any) error {
	cleaned := StripCodeFences(reply)
	if cleaned == "" {
		return fmt.Errorf("empty reply")
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}

// FirstNonEmpty returns the first value that is not blank.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
