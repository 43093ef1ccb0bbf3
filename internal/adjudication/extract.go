package adjudication

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

var errNoJSONObject = errors.New("no JSON object in response")

// ExtractJSONObject returns the first complete JSON object in text. Models
// often wrap their answer in prose or ``` fences; both are skipped.
func ExtractJSONObject(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	for start := strings.IndexByte(text, '{'); start >= 0; {
		dec := json.NewDecoder(strings.NewReader(text[start:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == nil && len(raw) > 0 && raw[0] == '{' {
			return compact(raw), nil
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, errNoJSONObject
}

func compact(raw json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
