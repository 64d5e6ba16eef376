// Package textutil holds small string helpers shared across layers.
package textutil

import "strings"

// NormalizeStringMap trims keys and values and drops entries whose key is
// blank. Returns nil when nothing survives, so callers can skip assignment
// of processor metadata entirely.
func NormalizeStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		result[trimmedKey] = strings.TrimSpace(value)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
