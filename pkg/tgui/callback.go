package tgui

import "strings"

// Data formats callback data as "scope:action" or "scope:action:payload".
// The payload is carried verbatim; Telegram limits callback data to 64
// bytes, so keep payloads short.
func Data(scope, action, payload string) string {
	scope = strings.TrimSpace(scope)
	action = strings.TrimSpace(action)
	if payload == "" {
		return scope + ":" + action
	}
	return scope + ":" + action + ":" + payload
}

// ParseData splits callback data produced by Data. ok is false when the
// data has fewer than two parts.
func ParseData(data string) (scope, action, payload string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(data), ":", 3)
	if len(parts) < 2 {
		return "", "", "", false
	}
	scope, action = parts[0], parts[1]
	if len(parts) == 3 {
		payload = parts[2]
	}
	return scope, action, payload, true
}
