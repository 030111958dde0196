package slottable

import "reflect"

// Equatable lets cached values define their own notion of sameness,
// used when deciding whether a stored slot must be overwritten.
type Equatable interface {
	Equals(other any) bool
}

// Same reports whether two cached values are interchangeable. Values
// implementing Equatable decide for themselves; everything else falls
// back to deep structural equality.
func Same(a, b any) bool {
	if eq, ok := a.(Equatable); ok {
		return eq.Equals(b)
	}
	return reflect.DeepEqual(a, b)
}
