// Package util contains small helpers for rendering values into log lines and error messages.
package util

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/json"
)

// MaxLogValueLen bounds the length of a value rendered by Stringify.
const MaxLogValueLen = 256

// Map applies f to every element of s: (a -> b) -> [a] -> [b].
func Map[T, U any](f func(T) U, s []T) []U {
	result := make([]U, len(s))
	for i, v := range s {
		result[i] = f(v)
	}
	return result
}

// Join renders the elements of s with their String method and joins them with sep.
func Join[T fmt.Stringer](s []T, sep string) string {
	return strings.Join(Map(func(v T) string { return v.String() }, s), sep)
}

// Stringify renders v as compact JSON for logging, falling back to Go syntax when v cannot be
// encoded. The result is cut at MaxLogValueLen.
func Stringify(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return Truncate(fmt.Sprintf("%#v", v), MaxLogValueLen)
	}
	return Truncate(string(b), MaxLogValueLen)
}

// Truncate cuts s to at most n bytes and marks the cut.
func Truncate(s string, n int) string {
	if n < 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
