package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Inbound is the single internal representation of a raw signal before it
// becomes a canonical Event. Upstream producers disagree on field naming
// (camelCase vs snake_case) and on whether the payload is wrapped in a
// "detail" envelope; all of that compatibility lives here and nowhere else.
type Inbound struct {
	EventName    string
	EventSource  string
	SourceIP     string
	Severity     Severity
	Description  string
	Timestamp    int64 // seconds since epoch, 0 when absent or unparseable
	UserIdentity map[string]string
	Raw          string // the original (unwrapped) payload, preserved for audit
}

// Field aliases accepted from upstream producers, in precedence order.
var (
	eventNameKeys   = []string{"event_name", "eventName", "event_type", "eventType"}
	sourceIPKeys    = []string{"source_ip", "sourceIPAddress", "sourceIP"}
	eventSourceKeys = []string{"event_source", "eventSource", "source"}
	descriptionKeys = []string{"description"}
	severityKeys    = []string{"severity"}
	timestampKeys   = []string{"timestamp"}
	identityKeys    = []string{"user_identity", "userIdentity"}
	usernameKeys    = []string{"username", "userName"}
)

// DecodeInbound decodes a raw signal payload into the internal Inbound
// representation. It tolerates a "detail" wrapper and both naming styles,
// and applies the documented defaults: SourceIP falls back to "Unknown" and
// Severity to LOW when absent.
func DecodeInbound(data []byte) (*Inbound, error) {
	var outer map[string]any
	if err := json.Unmarshal(data, &outer); err != nil {
		return nil, fmt.Errorf("schema: malformed inbound payload: %w", err)
	}

	payload := outer
	if detail, ok := outer["detail"].(map[string]any); ok {
		payload = detail
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("schema: cannot re-encode payload: %w", err)
	}

	in := &Inbound{
		EventName:   firstString(payload, eventNameKeys),
		EventSource: firstString(payload, eventSourceKeys),
		SourceIP:    firstString(payload, sourceIPKeys),
		Description: firstString(payload, descriptionKeys),
		Timestamp:   parseTimestamp(payload),
		Raw:         string(raw),
	}

	if in.SourceIP == "" {
		in.SourceIP = UnknownSource
	}

	in.Severity = parseSeverity(firstString(payload, severityKeys))
	in.UserIdentity = parseIdentity(payload)

	return in, nil
}

// firstString returns the first non-empty string value among the aliases.
func firstString(m map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// parseSeverity maps an upstream severity string onto the canonical tiers.
// Anything unrecognized defaults to the low baseline.
func parseSeverity(s string) Severity {
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// parseTimestamp accepts epoch seconds (number or numeric string) or an
// RFC 3339 string. Returns 0 when the field is absent or unparseable; the
// parser substitutes its own observed time in that case.
func parseTimestamp(m map[string]any) int64 {
	for _, k := range timestampKeys {
		switch v := m[k].(type) {
		case float64:
			return int64(v)
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return n
			}
		case string:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return n
			}
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t.Unix()
			}
		}
	}
	return 0
}

// parseIdentity collects the user identity mapping, folding a bare username
// field into it so downstream stages only deal with one shape.
func parseIdentity(m map[string]any) map[string]string {
	out := make(map[string]string)

	for _, k := range identityKeys {
		if id, ok := m[k].(map[string]any); ok {
			for key, val := range id {
				if s, ok := val.(string); ok {
					out[key] = s
				}
			}
			break
		}
	}

	if name := firstString(m, usernameKeys); name != "" {
		if _, exists := out["username"]; !exists {
			out["username"] = name
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
