package utils

import (
	"strconv"
	"strings"
)

const (
	// DefaultPageSize is used when a caller does not ask for a limit
	DefaultPageSize = 30
	// MaxPageSize caps every page request
	MaxPageSize = 100
)

// TruncatePreview returns at most max characters of text. It counts runes,
// so multi-byte characters are never split.
func TruncatePreview(text string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}

// UniqueMembers trims each id and removes blanks and duplicates, keeping the
// first occurrence order
func UniqueMembers(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ClampPageSize maps a requested limit onto [1, MaxPageSize], with 0 or a
// negative value meaning DefaultPageSize
func ClampPageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// ParsePageSize parses a limit query parameter. An empty value yields
// DefaultPageSize.
func ParsePageSize(raw string) (int, error) {
	if raw == "" {
		return DefaultPageSize, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	return ClampPageSize(n), nil
}
