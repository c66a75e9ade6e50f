package slice

import "strings"

// Check if a string exists in a string slice
func Contains(slice []string, str string) bool {
	for _, item := range slice {
		if item == str {
			return true
		}
	}
	return false
}

// Unique returns items without duplicates, keeping first occurrences in order.
func Unique(items []string) []string {
	seen := make(map[string]bool, len(items))
	result := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		result = append(result, item)
	}
	return result
}

// split string and clean
func SplitCSV(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// SplitAll applies SplitCSV to every element, so "a,b c" style arguments
// and repeated arguments can be mixed.
func SplitAll(items []string) []string {
	var result []string
	for _, item := range items {
		result = append(result, SplitCSV(item)...)
	}
	return result
}
