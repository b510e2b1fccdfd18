package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
)

var noticeKinds = map[string]bool{
	"disconnect": true,
	"limit":      true,
	"warning":    true,
	"error":      true,
}

// ParseNotice reports whether raw is a control message rather than an event.
// Control messages are single-key objects such as
// {"disconnect":{"code":4,"reason":"..."}} or {"limit":{"track":12}}.
func ParseNotice(raw []byte) (Status, bool) {
	if len(raw) == 0 || raw[0] != '{' {
		return Status{}, false
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil || len(m) != 1 {
		return Status{}, false
	}

	for kind, body := range m {
		if !noticeKinds[kind] {
			return Status{}, false
		}
		st := Status{Kind: kind}
		fillNotice(&st, body)
		return st, true
	}
	return Status{}, false
}

func fillNotice(st *Status, body json.RawMessage) {
	var text string
	if err := json.Unmarshal(body, &text); err == nil {
		st.Message = text
		return
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		st.Message = string(body)
		return
	}

	switch code := fields["code"].(type) {
	case float64:
		st.Code = int(code)
	case string:
		if n, err := strconv.Atoi(code); err == nil {
			st.Code = n
		} else {
			st.Message = code
		}
	}

	for _, key := range []string{"reason", "message"} {
		if s, ok := fields[key].(string); ok && s != "" {
			if st.Message != "" {
				st.Message += ": "
			}
			st.Message += s
			return
		}
	}

	if n, ok := fields["track"].(float64); ok {
		st.Message = fmt.Sprintf("%d undelivered events", int64(n))
	}
}
