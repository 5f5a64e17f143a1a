package tools

import (
	"fmt"
	"math"
	"strings"
)

// ArgumentError reports a missing or malformed tool argument.
type ArgumentError struct {
	Name   string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Name, e.Reason)
}

// StringArg returns a required, non-blank string argument.
func StringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return "", &ArgumentError{Name: name, Reason: "is required"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &ArgumentError{Name: name, Reason: fmt.Sprintf("must be a string, got %T", v)}
	}
	if strings.TrimSpace(s) == "" {
		return "", &ArgumentError{Name: name, Reason: "must not be empty"}
	}
	return s, nil
}

// OptionalStringArg returns a string argument or "" when absent.
func OptionalStringArg(args map[string]any, name string) (string, error) {
	if v, ok := args[name]; !ok || v == nil {
		return "", nil
	}
	s, ok := args[name].(string)
	if !ok {
		return "", &ArgumentError{Name: name, Reason: fmt.Sprintf("must be a string, got %T", args[name])}
	}
	return s, nil
}

// IntArg returns an integer argument clamped to [lo, hi], or def when absent.
// JSON numbers arrive as float64 and must be whole.
func IntArg(args map[string]any, name string, def, lo, hi int) (int, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return def, nil
	}

	var n int
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) {
			return 0, &ArgumentError{Name: name, Reason: "must be a whole number"}
		}
		n = int(x)
	case int:
		n = x
	case int64:
		n = int(x)
	default:
		return 0, &ArgumentError{Name: name, Reason: fmt.Sprintf("must be a number, got %T", v)}
	}

	if n < lo {
		n = lo
	}
	if n > hi {
		n = hi
	}
	return n, nil
}

// QueryLength measures the size of the caller's query for cost estimation: the
// length of the "query" argument when present, else the summed length of all
// string arguments.
func QueryLength(args map[string]any) int {
	if q, ok := args["query"].(string); ok {
		return len(q)
	}
	total := 0
	for _, v := range args {
		if s, ok := v.(string); ok {
			total += len(s)
		}
	}
	return total
}
