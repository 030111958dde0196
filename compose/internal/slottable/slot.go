package slottable

import (
	"github.com/on-the-ground/compose_ive_go/compose/internal/callkey"
)

// Slot is one entry of the positional table. The sequence of slots is a
// pre-order flattening of a tree of groups: every StartGroup has exactly
// one matching EndGroup at the same nesting depth.
//
// Slot is a sealed interface; only the four predefined variants below
// can implement it.
type Slot interface {
	sealedSlot()
}

// StartGroup opens a nested region of the table.
type StartGroup struct {
	Key   callkey.Key
	Group GroupID
	// Len is the number of slots spanned by the group, including this
	// slot and the matching EndGroup. It is rewritten lazily each time
	// the group is closed.
	Len int
}

func (*StartGroup) sealedSlot() {}

// EndGroup closes the nearest open group.
type EndGroup struct{}

func (EndGroup) sealedSlot() {}

// Value holds a type-erased cached value. The reader downcasts it under
// the invariant that identical call keys always carry the same concrete
// type; the downcast is checked and fails loudly on mismatch.
type Value struct {
	Key callkey.Key
	Val any
}

func (*Value) sealedSlot() {}

// Placeholder reserves a value slot that has been read before its value
// was computed in the same pass.
type Placeholder struct {
	Key callkey.Key
}

func (*Placeholder) sealedSlot() {}

// Disposable values are notified exactly once when their slot is
// garbage-collected, i.e. when a run completes without visiting the
// call site that produced them.
type Disposable interface {
	Dispose()
}

// span returns the number of slots the given slot stands for when the
// cursor steps over it without descending.
func span(s Slot) int {
	if sg, ok := s.(*StartGroup); ok {
		return sg.Len
	}
	return 1
}
