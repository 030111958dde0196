package slottable

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/on-the-ground/compose_ive_go/compose/internal/callkey"
)

// Writer is the stateful cursor used to update a table during one run.
// It borrows the table exclusively between NewWriter and Finish.
//
// Operating on a slot whose shape does not match the operation's
// expectation is an internal-consistency violation and panics: it
// indicates a bug in the calling code or in the cache itself, never a
// recoverable runtime condition.
type Writer struct {
	table *Table
	// pos is the write cursor, an index into table.slots.
	pos int
	// groupStack holds the start indices of currently open groups.
	groupStack []int
	logger     *zap.Logger
}

// NewWriter wraps a previous run's table and immediately opens the
// implicit root group.
func NewWriter(t *Table) *Writer {
	w := &Writer{table: t, logger: t.logger}
	w.StartGroup(callkey.RootKey)
	return w
}

// parentGroup returns the metadata handle of the innermost open group,
// or NoGroup when called before the root group is opened.
func (w *Writer) parentGroup() GroupID {
	if len(w.groupStack) == 0 {
		return NoGroup
	}
	start := w.groupStack[len(w.groupStack)-1]
	sg, ok := w.table.slots[start].(*StartGroup)
	if !ok {
		panic("slottable: group stack does not point at a StartGroup")
	}
	return sg.Group
}

// InvalidationToken returns the handle of the currently open group, for
// marking it dirty on a subsequent run.
func (w *Writer) InvalidationToken() GroupID {
	id := w.parentGroup()
	if id == NoGroup {
		panic("slottable: invalidation token requested outside of any group")
	}
	return id
}

// findInCurrentGroup searches forward from the cursor, within the
// current group only, for a slot tagged with key. Non-matching nested
// groups are stepped over by their length, never descended into.
func (w *Writer) findInCurrentGroup(key callkey.Key) (int, bool) {
	i := w.pos
	for i < len(w.table.slots) {
		switch s := w.table.slots[i].(type) {
		case *StartGroup:
			if s.Key == key {
				return i, true
			}
			i += s.Len
		case *Value:
			if s.Key == key {
				return i, true
			}
			i++
		case EndGroup:
			// reached the end of the current group
			return 0, false
		default:
			i++
		}
	}
	return 0, false
}

// groupEndPos returns the index of the EndGroup matching the currently
// open group, scanning forward from the cursor.
func (w *Writer) groupEndPos() int {
	i := w.pos
	for i < len(w.table.slots) {
		if _, ok := w.table.slots[i].(EndGroup); ok {
			break
		}
		i += span(w.table.slots[i])
	}
	return i
}

// rotateIntoPlace rotates the sub-range [pos, groupEnd) left so that
// the slot found at index i lands on the cursor while the relative
// order of everything it passed over is preserved. This is what keeps
// reordered siblings cheap: O(distance skipped), not a rebuild.
func (w *Writer) rotateIntoPlace(i int) {
	if i < w.pos {
		panic("slottable: rotate target behind cursor")
	}
	end := w.groupEndPos()
	if i > end {
		panic("slottable: rotate target outside current group")
	}
	rotateLeft(w.table.slots[w.pos:end], i-w.pos)
}

func rotateLeft(s []Slot, k int) {
	if len(s) == 0 || k == 0 {
		return
	}
	k %= len(s)
	slices.Reverse(s[:k])
	slices.Reverse(s[k:])
	slices.Reverse(s)
}

// sync brings the slot tagged with key under the cursor if it exists in
// the current group, and reports whether it was found.
func (w *Writer) sync(key callkey.Key) bool {
	if i, ok := w.findInCurrentGroup(key); ok {
		if d := i - w.pos; d > 0 {
			w.logger.Debug("rotating slot into place",
				zap.Stringer("key", key),
				zap.Int("distance", d),
			)
		}
		w.rotateIntoPlace(i)
		return true
	}
	return false
}

// StartGroup opens the group identified by key at the cursor, creating
// it if this is the call site's first visit. It returns the group's
// dirty flag so the caller can force re-execution after an external
// invalidation.
func (w *Writer) StartGroup(key callkey.Key) bool {
	found := w.sync(key)
	parent := w.parentGroup()

	var dirty bool
	if found {
		sg, ok := w.table.slots[w.pos].(*StartGroup)
		if !ok {
			panic("slottable: StartGroup: synced slot is not a group start")
		}
		dirty = w.table.mustGroup(sg.Group).Dirty
	} else {
		id := w.table.newGroup(parent)
		// 2 = initial span of an empty group (start + end slots).
		w.table.insert(w.pos, &StartGroup{Key: key, Group: id, Len: 2})
		w.table.insert(w.pos+1, EndGroup{})
	}

	w.groupStack = append(w.groupStack, w.pos)
	w.pos++
	return dirty
}

// EndGroup closes the innermost open group. Every slot between the
// cursor and the group's EndGroup marker was not revisited this run and
// is dead: such slots are drained from the table, their group metadata
// erased and their Disposable values notified. The group's dirty flag
// is cleared and its recorded span rewritten.
func (w *Writer) EndGroup() {
	end := w.groupEndPos()
	w.table.remove(w.pos, end)

	// step past the EndGroup marker
	w.pos++

	if len(w.groupStack) == 0 {
		panic("slottable: EndGroup without matching StartGroup")
	}
	start := w.groupStack[len(w.groupStack)-1]
	w.groupStack = w.groupStack[:len(w.groupStack)-1]

	sg, ok := w.table.slots[start].(*StartGroup)
	if !ok {
		panic("slottable: EndGroup: group stack does not point at a StartGroup")
	}
	w.table.mustGroup(sg.Group).Dirty = false
	sg.Len = w.pos - start
}

// CompareAndUpdateValue finds or inserts the value slot tagged with key
// at the cursor and reports whether the stored value changed. An
// existing value is overwritten only when Same reports a difference.
func (w *Writer) CompareAndUpdateValue(key callkey.Key, newValue any) bool {
	var changed bool
	if w.sync(key) {
		v, ok := w.table.slots[w.pos].(*Value)
		if !ok {
			panic("slottable: CompareAndUpdateValue: synced slot is not a value")
		}
		if !Same(v.Val, newValue) {
			v.Val = newValue
			changed = true
		}
	} else {
		w.table.insert(w.pos, &Value{Key: key, Val: newValue})
		changed = true
	}
	w.pos++
	return changed
}

// ExpectValue reads the value slot at the cursor, positionally. If the
// slot already holds a value for this key, the value is returned;
// otherwise a placeholder is reserved so SetValue can commit the value
// later, after the caller has decided whether its body must run.
// The returned index addresses the slot for SetValue.
func (w *Writer) ExpectValue(key callkey.Key) (val any, ok bool, slot int) {
	slot = w.pos
	if v, isValue := w.table.slots[slot].(*Value); isValue && v.Key == key {
		val, ok = v.Val, true
	} else {
		w.table.insert(slot, &Placeholder{Key: key})
	}
	w.pos++
	return val, ok, slot
}

// SetValue overwrites a previously reserved or existing value slot by
// absolute index.
func (w *Writer) SetValue(slot int, value any) {
	switch s := w.table.slots[slot].(type) {
	case *Value:
		s.Val = value
	case *Placeholder:
		w.table.slots[slot] = &Value{Key: s.Key, Val: value}
	default:
		panic("slottable: SetValue: expected a value or placeholder slot")
	}
}

// Skip advances the cursor past one slot, stepping over whole groups by
// their recorded span. Skipping at an EndGroup marker is a no-op.
func (w *Writer) Skip() {
	switch s := w.table.slots[w.pos].(type) {
	case *StartGroup:
		w.pos += s.Len
	case EndGroup:
		// nothing to skip
	default:
		w.pos++
	}
}

// SkipUntilEndOfGroup advances the cursor to the EndGroup marker of the
// currently open group without comparing anything, so a clean group's
// previous results are reused verbatim.
func (w *Writer) SkipUntilEndOfGroup() {
	for {
		if _, ok := w.table.slots[w.pos].(EndGroup); ok {
			return
		}
		w.Skip()
	}
}

// Finish closes the implicit root group and returns the table for
// storage back into the facade. Unbalanced groups or an unconsumed
// table are fatal.
func (w *Writer) Finish() *Table {
	w.EndGroup()
	if len(w.groupStack) != 0 {
		panic("slottable: unbalanced groups at Finish")
	}
	if w.pos != len(w.table.slots) {
		panic(fmt.Sprintf("slottable: Finish before consuming the table: pos=%d len=%d",
			w.pos, len(w.table.slots)))
	}
	return w.table
}

// Dump renders the table with the writer's cursor marked.
func (w *Writer) Dump() string {
	return fmt.Sprintf("position: %d\nstack: %v\n%s", w.pos, w.groupStack, w.table.Dump(w.pos))
}
