package fact

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by the fact store and the expression evaluator.
var (
	// ErrUnknownFact indicates a referenced key is absent.
	ErrUnknownFact = errors.New("unknown fact")

	// ErrTypeMismatch indicates an operand or accessor has the wrong variant.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrDivisionByZero indicates a division or modulo by zero.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrIntegerOverflow indicates Int arithmetic whose result does not fit
	// in 64 bits. Int results never wrap around.
	ErrIntegerOverflow = errors.New("integer overflow")

	// ErrInvalidScopePop indicates popping a local layer that was never pushed.
	ErrInvalidScopePop = errors.New("invalid scope pop")
)

// UnknownFactError reports the key that could not be resolved.
type UnknownFactError struct {
	Key string
}

// Error returns the error message.
func (e *UnknownFactError) Error() string {
	return fmt.Sprintf("unknown fact %q", e.Key)
}

// Is reports whether target is ErrUnknownFact.
func (e *UnknownFactError) Is(target error) bool {
	return target == ErrUnknownFact
}

// TypeMismatchError reports an operation applied to operands of the wrong kind.
type TypeMismatchError struct {
	Op       string
	Operands []Kind
}

// Error returns the error message.
func (e *TypeMismatchError) Error() string {
	kinds := make([]string, len(e.Operands))
	for i, k := range e.Operands {
		kinds[i] = k.String()
	}
	return fmt.Sprintf("type mismatch: %s not defined for %s", e.Op, strings.Join(kinds, " and "))
}

// Is reports whether target is ErrTypeMismatch.
func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// Mismatch builds a TypeMismatchError for op over the kinds of vals.
func Mismatch(op string, vals ...Value) error {
	kinds := make([]Kind, len(vals))
	for i, v := range vals {
		kinds[i] = v.Kind()
	}
	return &TypeMismatchError{Op: op, Operands: kinds}
}
