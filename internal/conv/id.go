package conv

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// IDKey returns a correlation key for a raw JSON-RPC id so that 7, 7.0 and "7" match.
// An empty key means the message carries no id.
func IDKey(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err == nil {
			return normalizeNumber(text)
		}
		return string(raw)
	}
	return normalizeNumber(string(raw))
}

// AnyKey marshals an id value and returns its correlation key.
func AnyKey(id any) string {
	if id == nil {
		return ""
	}
	raw, err := json.Marshal(id)
	if err != nil {
		return ""
	}
	return IDKey(raw)
}

func normalizeNumber(text string) string {
	text = strings.TrimSpace(text)
	if f, err := strconv.ParseFloat(text, 64); err == nil && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return text
}
