package slottable

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/on-the-ground/compose_ive_go/compose/internal/callkey"
)

// GroupID is a stable handle to a group's metadata row. It is
// independent of the group's position in the slot sequence, so it
// survives the repositioning of StartGroup/EndGroup slots during
// rotation. Ids are allocated from a monotonically increasing counter
// and never reused.
type GroupID uint64

// NoGroup is the parent of the root group.
const NoGroup GroupID = 0

// Group is the invalidation metadata of one group.
type Group struct {
	Parent GroupID
	Dirty  bool
}

// Table is the flat ordered sequence of slots that is the actual cache
// storage, plus the side table mapping group identity to invalidation
// metadata. All mutation goes through a Writer; the table itself only
// supports indexed access, invalidation, and a debug dump.
type Table struct {
	slots  []Slot
	groups map[GroupID]*Group
	nextID GroupID
	logger *zap.Logger
}

// NewTable creates an empty table containing one root group spanning
// the whole sequence. A nil logger disables logging.
func NewTable(logger *zap.Logger) *Table {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Table{
		groups: make(map[GroupID]*Group),
		nextID: NoGroup + 1,
		logger: logger,
	}
	root := t.newGroup(NoGroup)
	t.slots = []Slot{
		&StartGroup{Key: callkey.RootKey, Group: root, Len: 2},
		EndGroup{},
	}
	return t
}

func (t *Table) newGroup(parent GroupID) GroupID {
	id := t.nextID
	t.nextID++
	t.groups[id] = &Group{Parent: parent}
	return id
}

func (t *Table) dropGroup(id GroupID) {
	delete(t.groups, id)
}

func (t *Table) mustGroup(id GroupID) *Group {
	g, ok := t.groups[id]
	if !ok {
		panic(fmt.Sprintf("slottable: no metadata for group %d", id))
	}
	return g
}

// Len returns the number of slots in the table.
func (t *Table) Len() int {
	return len(t.slots)
}

// GroupCount returns the number of live group metadata rows, the root
// group included.
func (t *Table) GroupCount() int {
	return len(t.groups)
}

// Dirty reports whether the given group is currently flagged dirty.
// Unknown groups report false.
func (t *Table) Dirty(id GroupID) bool {
	g, ok := t.groups[id]
	return ok && g.Dirty
}

// Invalidate marks the group dirty and walks parent links, marking
// every ancestor dirty as well, so that the next run redescends into
// the subtree. Invalidating a group that has already been removed is an
// expected race with garbage collection: it is logged and ignored.
func (t *Table) Invalidate(id GroupID) {
	g, ok := t.groups[id]
	if !ok {
		t.logger.Warn("invalidate: no such group, token is stale",
			zap.Uint64("group", uint64(id)),
		)
		return
	}
	for {
		g.Dirty = true
		if g.Parent == NoGroup {
			return
		}
		g = t.mustGroup(g.Parent)
	}
}

func (t *Table) insert(i int, s Slot) {
	t.slots = append(t.slots, nil)
	copy(t.slots[i+1:], t.slots[i:])
	t.slots[i] = s
}

// remove deletes slots[from:to], releasing group metadata and notifying
// Disposable values on the way out.
func (t *Table) remove(from, to int) {
	for _, s := range t.slots[from:to] {
		switch s := s.(type) {
		case *StartGroup:
			t.dropGroup(s.Group)
		case *Value:
			if d, ok := s.Val.(Disposable); ok {
				d.Dispose()
			}
		}
	}
	t.slots = append(t.slots[:from], t.slots[to:]...)
}

// Dump renders the slot sequence with group nesting and dirty flags,
// marking the given cursor position. Intended for tests and debug logs.
func (t *Table) Dump(pos int) string {
	var b strings.Builder
	depth := 0
	for i, s := range t.slots {
		if i == pos {
			b.WriteString("* ")
		} else {
			b.WriteString("  ")
		}
		if _, ok := s.(EndGroup); ok && depth > 0 {
			depth--
		}
		indent := strings.Repeat("  ", depth)
		switch s := s.(type) {
		case *StartGroup:
			g := t.mustGroup(s.Group)
			fmt.Fprintf(&b, "%3d %sStartGroup key=%v len=%d (end=%d) group=%d parent=%d dirty=%t\n",
				i, indent, s.Key, s.Len, i+s.Len-1, s.Group, g.Parent, g.Dirty)
			depth++
		case EndGroup:
			fmt.Fprintf(&b, "%3d %sEndGroup\n", i, indent)
		case *Value:
			fmt.Fprintf(&b, "%3d %sValue key=%v type=%T\n", i, indent, s.Key, s.Val)
		case *Placeholder:
			fmt.Fprintf(&b, "%3d %sPlaceholder key=%v\n", i, indent, s.Key)
		}
	}
	return b.String()
}
