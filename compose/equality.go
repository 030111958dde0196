package compose

import (
	"github.com/on-the-ground/compose_ive_go/compose/internal/slottable"
)

// Equatable lets cached values define their own notion of sameness.
// Changed, Memoize and WithState consult it before overwriting a stored
// value; values that do not implement it are compared structurally.
type Equatable = slottable.Equatable

// Disposable values are notified exactly once when the call site that
// produced them is garbage-collected at the end of a run.
type Disposable = slottable.Disposable

// Same reports whether two cached values are interchangeable.
func Same(a, b any) bool {
	return slottable.Same(a, b)
}
