package meter

import (
	"errors"
	"fmt"
)

var (
	// ErrCounterOverflow is returned when an increment would wrap a counter.
	ErrCounterOverflow = errors.New("counter overflow")
	// ErrKindMismatch is returned when a name is requested as a different
	// kind than the one it was registered with.
	ErrKindMismatch = errors.New("metric kind mismatch")
	// ErrNilRegistry is returned when a handle is requested from a nil
	// registry or a zero Scope.
	ErrNilRegistry = errors.New("nil registry")
)

// KindMismatchError describes a request for a metric under the wrong kind.
type KindMismatchError struct {
	Name       string
	Registered Kind
	Requested  Kind
}

// Error implements the error interface.
func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("metric %q registered as %s, requested as %s", e.Name, e.Registered, e.Requested)
}

// Unwrap returns ErrKindMismatch.
func (e *KindMismatchError) Unwrap() error {
	return ErrKindMismatch
}

// OverflowError describes a rejected counter increment.
type OverflowError struct {
	Key     Key
	Current uint64
	Delta   uint64
}

// Error implements the error interface.
func (e *OverflowError) Error() string {
	return fmt.Sprintf("counter %s overflow: %d + %d", e.Key, e.Current, e.Delta)
}

// Unwrap returns ErrCounterOverflow.
func (e *OverflowError) Unwrap() error {
	return ErrCounterOverflow
}
