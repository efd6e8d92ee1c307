package provider

import "strings"

const maskToken = "****"

var sensitiveKeys = []string{"key", "password", "token", "auth", "secret"}

// SensitiveKey reports whether a header or payload key names a secret
func SensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// MaskMap returns a copy of the map with secret-named values replaced
func MaskMap(data map[string]string) map[string]string {
	if data == nil {
		return nil
	}
	masked := make(map[string]string, len(data))
	for k, v := range data {
		if SensitiveKey(k) {
			masked[k] = maskToken
		} else {
			masked[k] = v
		}
	}
	return masked
}

// Scrub replaces raw secret values that leaked into free text, e.g. an API key
// echoed back inside a provider error message.
func Scrub(text string, secrets []string) string {
	for _, s := range secrets {
		if s == "" {
			continue
		}
		text = strings.ReplaceAll(text, s, maskToken)
	}
	return text
}
