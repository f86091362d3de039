package errors

import (
	"fmt"
	"strings"

	"mercator-hq/fre/pkg/rule"
)

// ErrorType categorizes a load or validation problem. Everything except
// ErrorTypeWarning blocks loading; warnings block only in strict mode.
type ErrorType string

const (
	ErrorTypeSyntax     ErrorType = "syntax"     // YAML or expression syntax
	ErrorTypeStructural ErrorType = "structural" // missing, unknown or malformed fields
	ErrorTypeSemantic   ErrorType = "semantic"   // conflicting ids, type misuse, bad references
	ErrorTypeWarning    ErrorType = "warning"    // suspicious but loadable
	ErrorTypeIO         ErrorType = "io"         // file access
)

// Error is a problem at a location in a rule file. The parser fills Context
// with the source lines around Location so the message can be read
// without opening the file; Suggestion is empty when no fix is obvious.
type Error struct {
	Type       ErrorType
	Message    string
	Location   rule.Location // file, line and column; may be zero for io errors
	Context    string        // surrounding source lines
	Suggestion string
}

// Error formats the problem over several lines: the type and message, then
// the location, the source context and the suggestion when present.
func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s\n", e.Type, e.Message)
	if e.Location.IsValid() {
		fmt.Fprintf(&sb, "  --> %s\n", e.Location)
	}
	if e.Context != "" {
		sb.WriteString("  |\n")
		sb.WriteString(e.Context)
		sb.WriteString("  |\n")
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&sb, "  = suggestion: %s\n", e.Suggestion)
	}
	return sb.String()
}

// ErrorList accumulates every problem found in one parse or validation
// run, so authors see all of them at once rather than fixing one per run.
// A non-empty list is itself an error.
type ErrorList struct {
	Errors []*Error
}

// NewErrorList returns an empty list ready for Add.
func NewErrorList() *ErrorList {
	return &ErrorList{Errors: make([]*Error, 0)}
}

// Add appends err.
func (el *ErrorList) Add(err *Error) {
	el.Errors = append(el.Errors, err)
}

// AddError appends a new problem.
func (el *ErrorList) AddError(errType ErrorType, message string, location rule.Location) {
	el.Add(&Error{Type: errType, Message: message, Location: location})
}

// AddErrorWithSuggestion appends a new problem with a suggested fix.
func (el *ErrorList) AddErrorWithSuggestion(errType ErrorType, message string, location rule.Location, suggestion string) {
	el.Add(&Error{Type: errType, Message: message, Location: location, Suggestion: suggestion})
}

// Merge appends every problem of other.
func (el *ErrorList) Merge(other *ErrorList) {
	if other != nil {
		el.Errors = append(el.Errors, other.Errors...)
	}
}

// HasErrors reports whether the list is non-empty.
func (el *ErrorList) HasErrors() bool {
	return len(el.Errors) > 0
}

// Count returns the number of problems.
func (el *ErrorList) Count() int {
	return len(el.Errors)
}

// Error formats every problem.
func (el *ErrorList) Error() string {
	if !el.HasErrors() {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d error(s):\n\n", el.Count())
	for i, err := range el.Errors {
		fmt.Fprintf(&sb, "Error %d:\n", i+1)
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

// ToError returns nil for an empty list and the list otherwise. Use it when
// returning the list as an error, so that an empty list does not become a
// non-nil error interface.
func (el *ErrorList) ToError() error {
	if !el.HasErrors() {
		return nil
	}
	return el
}

// ByType returns the problems of errType in the order they were added. The
// CLI uses it to print warnings apart from failures.
func (el *ErrorList) ByType(errType ErrorType) []*Error {
	var result []*Error
	for _, err := range el.Errors {
		if err.Type == errType {
			result = append(result, err)
		}
	}
	return result
}

// HasErrorType reports whether any problem has errType.
func (el *ErrorList) HasErrorType(errType ErrorType) bool {
	for _, err := range el.Errors {
		if err.Type == errType {
			return true
		}
	}
	return false
}
