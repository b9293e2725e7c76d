package diaglog

import "strings"

// sensitiveKeys are the field names whose values are replaced with
// "[REDACTED]" before any log entry is written. Client addresses and origins
// arrive from the status websocket; tokens and passwords from config dumps.
var sensitiveKeys = map[string]bool{
	"password":    true,
	"secret":      true,
	"token":       true,
	"auth":        true,
	"cookie":      true,
	"remote_addr": true,
	"origin":      true,
}

// Redact returns a copy of v with the value of every key in sensitiveKeys
// replaced by "[REDACTED]", at any depth. Keys match case-insensitively.
// Non-map, non-slice values are returned unchanged.
func Redact(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			if sensitiveKeys[strings.ToLower(k)] {
				out[k] = "[REDACTED]"
			} else {
				out[k] = Redact(child)
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, elem := range val {
			out[i] = Redact(elem)
		}
		return out
	default:
		return v
	}
}
