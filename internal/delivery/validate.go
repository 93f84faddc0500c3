package delivery

import (
	"encoding/json"
	"strings"
)

func is2xx(status int) bool {
	return status >= 200 && status < 300
}

// IsValidStrict reports whether a collector acknowledged a request: a 2xx
// status and a JSON object whose "result" field is truthy.
func IsValidStrict(status int, body string) bool {
	if !is2xx(status) {
		return false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(body), &obj); err != nil || obj == nil {
		return false
	}
	return truthy(obj["result"])
}

// IsValidBroad reports whether a response is at least well formed: a 2xx
// status and a JSON object or array body, possibly empty.
func IsValidBroad(status int, body string) bool {
	if !is2xx(status) {
		return false
	}
	trimmed := strings.TrimSpace(body)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return false
	}
	return json.Valid([]byte(trimmed))
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}
