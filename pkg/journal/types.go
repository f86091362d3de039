package journal

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a journal record.
type Kind string

const (
	KindFiring   Kind = "firing"
	KindError    Kind = "error"
	KindOverflow Kind = "overflow"
)

// Record is one journaled engine report. Overflow records carry the
// source rule in RuleID, the depth in Pass and no EventID.
type Record struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Tick       uint64    `json:"tick"`
	Pass       int       `json:"pass"`
	RuleID     string    `json:"rule_id,omitempty"`
	Event      string    `json:"event"`
	EventID    string    `json:"event_id,omitempty"`
	Phase      string    `json:"phase,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Message    string    `json:"message,omitempty"`
	Actions    []string  `json:"actions,omitempty"`
	Outputs    []string  `json:"outputs,omitempty"`
	Changed    bool      `json:"changed,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Filter selects records. Zero fields match everything.
type Filter struct {
	Kind   Kind
	RuleID string
	Event  string
	Since  time.Time
	Until  time.Time

	// Limit caps the result; 0 means DefaultLimit.
	Limit int
}

// DefaultLimit is the result cap for a Filter without Limit.
const DefaultLimit = 100

// MaxLimit is the largest accepted Limit.
const MaxLimit = 10000

// ErrInvalidFilter is returned for filters that cannot be executed.
var ErrInvalidFilter = errors.New("invalid journal filter")

// Validate checks the filter.
func (f *Filter) Validate() error {
	switch f.Kind {
	case "", KindFiring, KindError, KindOverflow:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidFilter, f.Kind)
	}
	if f.Limit < 0 || f.Limit > MaxLimit {
		return fmt.Errorf("%w: limit must be between 0 and %d", ErrInvalidFilter, MaxLimit)
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && f.Until.Before(f.Since) {
		return fmt.Errorf("%w: until is before since", ErrInvalidFilter)
	}
	return nil
}

// StorageError wraps a database failure with the operation that failed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("journal %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
