package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Status is the lifecycle state of a media request. Values are persisted
// as small integers.
type Status int

const (
	StatusSubmitted Status = iota
	StatusArchived
	StatusCancelled
	StatusInvalid
)

var statusNames = [...]string{"submitted", "archived", "cancelled", "invalid"}

var statusLabels = [...]string{"已提交", "已入库", "已取消", "不符合规范"}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s >= StatusSubmitted && s <= StatusInvalid
}

// Terminal reports whether s can no longer change.
func (s Status) Terminal() bool {
	return s == StatusArchived || s == StatusCancelled || s == StatusInvalid
}

// CanTransition reports whether a request in status s may move to next.
// Only submitted requests are adjudicated, and only into a terminal status.
func (s Status) CanTransition(next Status) bool {
	return s == StatusSubmitted && next.Terminal()
}

func (s Status) String() string {
	if !s.Valid() {
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
	return statusNames[s]
}

// Label is the user-facing name of the status.
func (s Status) Label() string {
	if !s.Valid() {
		return s.String()
	}
	return statusLabels[s]
}

// ParseStatus accepts either the numeric value or the lower-case name.
func ParseStatus(raw string) (Status, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if n, err := strconv.Atoi(raw); err == nil {
		if s := Status(n); s.Valid() {
			return s, nil
		}
		return 0, fmt.Errorf("unknown status %d", n)
	}
	for i, name := range statusNames {
		if name == raw {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", raw)
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts 1 as well as "archived".
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var text string
	switch v := raw.(type) {
	case float64:
		if v != float64(int(v)) {
			return fmt.Errorf("status must be an integer, got %v", v)
		}
		text = strconv.Itoa(int(v))
	case string:
		text = v
	default:
		return fmt.Errorf("status must be a number or a string")
	}
	parsed, err := ParseStatus(text)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
