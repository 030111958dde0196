package helper

import (
	"fmt"
)

// ErrTypeMismatch is returned when a type-erased cache value does not
// have the concrete type the call site expects.
var ErrTypeMismatch = fmt.Errorf("type mismatch")

// GetTypedValueOf safely asserts the result of a getter function to the
// expected type T. Returns an error if type assertion fails.
func GetTypedValueOf[T any](getFn func() (any, error)) (T, error) {
	var zero T

	res, err := getFn()
	if err != nil {
		return zero, fmt.Errorf("failed to get value: %w", err)
	}

	val, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("%w: expected %T, got %T", ErrTypeMismatch, zero, res)
	}

	return val, nil
}

// MustGetTypedValue is the panic-on-failure variant of GetTypedValueOf.
// Use when a mismatch is a programming error: a given call key must
// carry the same concrete type across runs, so a failed assertion means
// the call-site identity collided or the call site changed its type.
func MustGetTypedValue[T any](getFn func() (any, error)) T {
	res, err := GetTypedValueOf[T](getFn)
	if err != nil {
		panic(err)
	}
	return res
}
