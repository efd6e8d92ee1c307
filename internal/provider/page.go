package provider

import (
	"encoding/json"
	"fmt"
)

// Providers are inconsistent about the shape of list responses: sometimes a
// bare array, sometimes wrapped in {"items": ...} or {"data": ...}.
// NormalizePage flattens all three into one page of raw records before
// anything downstream sees them.
func NormalizePage(raw json.RawMessage) ([]json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var wrapped struct {
		Items []json.RawMessage `json:"items"`
		Data  []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("unrecognized page shape: %w", err)
	}
	if wrapped.Items != nil {
		return wrapped.Items, nil
	}
	if wrapped.Data != nil {
		return wrapped.Data, nil
	}
	return nil, nil
}

// UnauthorizedPayload detects providers that encode auth failures as a 2xx
// response with an embedded error code.
func UnauthorizedPayload(raw json.RawMessage) (string, bool) {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", false
	}
	if body.Code != "unauthorized" {
		return "", false
	}
	msg := body.Message
	if msg == "" {
		msg = "Access denied"
	}
	return msg, true
}
