package voice

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"leadpipe/internal/leads/ports"
)

// topicWire is one transcript section as the provider sends it. Field types
// vary between provider versions, so every field is decoded by hand.
type topicWire struct {
	Confirmed json.RawMessage `json:"confirmed"`
	Response  json.RawMessage `json:"response"`
	Value     json.RawMessage `json:"value"`
}

// decodeResponses reads transcript.responses. Sections that are not objects
// are skipped; the second return value reports whether anything was dropped.
func decodeResponses(raw json.RawMessage) (map[string]ports.TopicResponse, bool) {
	if isNull(raw) {
		return nil, false
	}
	var envelope struct {
		Responses map[string]json.RawMessage `json:"responses"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, true
	}

	dropped := false
	out := make(map[string]ports.TopicResponse, len(envelope.Responses))
	for topic, section := range envelope.Responses {
		var w topicWire
		if err := json.Unmarshal(section, &w); err != nil {
			dropped = true
			continue
		}
		out[topic] = ports.TopicResponse{
			Confirmed: truthy(w.Confirmed),
			Response:  scalarText(w.Response),
			Value:     scalarText(w.Value),
		}
	}
	return out, dropped
}

// truthy interprets a loosely typed flag: booleans as-is, numbers when
// non-zero, strings unless empty or a negative word.
func truthy(raw json.RawMessage) bool {
	if isNull(raw) {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "", "false", "no", "n", "0", "off", "none", "null":
			return false
		}
		return true
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return false
}

// scalarText renders a string, number or boolean as text. Objects and
// arrays yield their compact JSON.
func scalarText(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return ""
	}
	return buf.String()
}

// timeText accepts a timestamp sent as a string and ignores anything else.
func timeText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
