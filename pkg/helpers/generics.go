package helpers

import "unicode/utf8"

func Ptr[T any](value T) *T {
	return &value
}

func SafeValue[T any](value *T) T {
	if value == nil {
		return *new(T)
	}
	return *value
}

// TruncateString caps s at max runes, marking the cut with an ellipsis.
func TruncateString(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}
