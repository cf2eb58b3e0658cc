// Package strings holds order-preserving string slice helpers used for
// identifier lists and comma-separated settings.
package strings

import "strings"

// DedupeAndTrim trims every value then drops blanks and repeats, keeping the
// first occurrence. A nil or empty input is returned as is.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
	trimmed := make([]string, len(values))
	for i, v := range values {
		trimmed[i] = strings.TrimSpace(v)
	}
	return DedupeFirstSeen(trimmed)
}

// DedupeFirstSeen keeps the first occurrence of each non-empty value.
// Values are compared verbatim. The result is never nil.
func DedupeFirstSeen(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

// PromoteToFront moves first to index 0 if present, keeping the relative
// order of everything else. An empty or absent first leaves values unchanged.
func PromoteToFront(values []string, first string) []string {
	if first == "" {
		return values
	}
	for i, v := range values {
		if v != first {
			continue
		}
		if i == 0 {
			return values
		}
		copy(values[1:i+1], values[:i])
		values[0] = first
		return values
	}
	return values
}
