package rtkernel

import (
	"fmt"
	"strconv"
	"strings"
)

// Priority is the scheduling priority of a [Task]. Higher values are more
// urgent. Valid priorities lie in the range [0, MaxPriorities).
type Priority int

// ParsePriority creates a new [Priority] from the given value. Names known to
// [Priorities] and integers are accepted; anything else yields
// Priorities.Invalid.
func ParsePriority(p any) Priority {
	switch v := p.(type) {
	case Priority:
		return v
	case string:
		return stringToPriority(v)
	case fmt.Stringer:
		return stringToPriority(v.String())
	case int:
		return Priority(v)
	case int64:
		return Priority(int(v))
	case int32:
		return Priority(int(v))
	case uint8:
		return Priority(int(v))
	default:
		return Priorities.Invalid
	}
}

// MarshalJSON encodes named priorities as strings and others as numbers. The
// invalid priority cannot be encoded.
func (p Priority) MarshalJSON() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("invalid priority %d", int(p))
	}
	if _, ok := strPriorityMap[p]; ok {
		return []byte(`"` + p.String() + `"`), nil
	}
	return []byte(strconv.Itoa(int(p))), nil
}

// UnmarshalJSON accepts the forms written by MarshalJSON and rejects anything
// that does not name a valid priority.
func (p *Priority) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return p.UnmarshalText([]byte(s))
}

// MarshalText implements [encoding.TextMarshaler] so that priorities appear by
// name in text based formats such as YAML.
func (p Priority) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("invalid priority %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (p *Priority) UnmarshalText(b []byte) error {
	v := stringToPriority(string(b))
	if !v.IsValid() {
		return fmt.Errorf("invalid priority %q", string(b))
	}
	*p = v
	return nil
}

// String returns the name of a well known priority, or its decimal value.
func (p Priority) String() string {
	if s, ok := strPriorityMap[p]; ok {
		return s
	}
	return strconv.Itoa(int(p))
}

// IsValid reports whether p is a usable priority level. The upper bound is a
// property of the kernel configuration and is checked by the kernel.
func (p Priority) IsValid() bool {
	return p >= 0
}

// Priorities is a more typical enum like structure from other languages, ported
// to Go. It may be used to reference a [Priority] value by name.
var Priorities = priorityContainer{
	Invalid: -1,
	Idle:    0,
	Low:     1,
	Medium:  2,
	High:    3,
}

// All returns all named priorities that may be assigned to a task.
func (c priorityContainer) All() []Priority {
	return []Priority{c.Idle, c.Low, c.Medium, c.High}
}

var (
	strPriorityMap = map[Priority]string{
		-1: "invalid",
		0:  "idle",
		1:  "low",
		2:  "medium",
		3:  "high",
	}

	typePriorityMap = map[string]Priority{
		"idle":   0,
		"low":    1,
		"medium": 2,
		"high":   3,
	}
)

func stringToPriority(s string) Priority {
	s = strings.TrimSpace(strings.ToLower(s))
	if v, ok := typePriorityMap[s]; ok {
		return v
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return Priority(n)
	}
	return Priorities.Invalid
}

type priorityContainer struct {
	Invalid Priority
	Idle    Priority
	Low     Priority
	Medium  Priority
	High    Priority
}
