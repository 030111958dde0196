package callkey

import (
	"encoding/binary"
	"fmt"
	"runtime"

	"github.com/cespare/xxhash/v2"
)

// Key uniquely identifies one dynamic call to a cached function.
// It is derived from the static call-site location, a small
// disambiguating index, and the keys of the two most recently entered
// enclosing scopes.
type Key uint64

// RootKey is the key of the implicit root scope that encloses every run.
const RootKey Key = 0

func (k Key) String() string {
	return fmt.Sprintf("CallKey(%016X)", uint64(k))
}

// Location is the static source-location token of a call site.
// Use Here or Caller to capture it from the runtime, or Label to assign
// an explicit key where caller introspection is not available
// (e.g. code generated without stable source positions).
type Location struct {
	File string
	Line int
}

// Here captures the location of the calling statement.
func Here() Location {
	return Caller(1)
}

// Caller captures the location skip frames above the caller of Caller.
func Caller(skip int) Location {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Location{File: "<unknown>"}
	}
	return Location{File: file, Line: line}
}

// Label builds a manually-assigned location token.
func Label(name string) Location {
	return Location{File: name}
}

func (l Location) String() string {
	if l.Line == 0 {
		return l.File
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Stack produces call keys scoped by the current nesting of active
// scopes. Enter and Exit must be paired 1:1; the cache run asserts the
// stack is empty when the root function returns.
//
// Keys chain only the two nearest ancestor keys, not the full ancestor
// path. This is a deliberate speed trade-off inherited from the design:
// deeply nested identical call patterns under the same two-level chain
// can collide.
type Stack struct {
	keys []uint64
}

func NewStack() *Stack {
	return &Stack{}
}

func (s *Stack) chainHash(loc Location, index int) uint64 {
	var key0, key1 uint64
	if n := len(s.keys); n >= 1 {
		key0 = s.keys[n-1]
		if n >= 2 {
			key1 = s.keys[n-2]
		}
	}

	var buf [8]byte
	d := xxhash.New()
	binary.LittleEndian.PutUint64(buf[:], key0)
	_, _ = d.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], key1)
	_, _ = d.Write(buf[:])
	_, _ = d.WriteString(loc.File)
	binary.LittleEndian.PutUint64(buf[:], uint64(loc.Line))
	_, _ = d.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(index))
	_, _ = d.Write(buf[:])
	return d.Sum64()
}

// Enter computes the key of the call identified by loc and index within
// the current scope chain, pushes it, and returns it.
func (s *Stack) Enter(loc Location, index int) Key {
	key := s.chainHash(loc, index)
	s.keys = append(s.keys, key)
	return Key(key)
}

// Exit pops the most recently entered scope.
// Exiting more scopes than were entered is a bug in the calling code.
func (s *Stack) Exit() {
	if len(s.keys) == 0 {
		panic("callkey: Exit without matching Enter")
	}
	s.keys = s.keys[:len(s.keys)-1]
}

// Current returns the key of the innermost active scope, or RootKey if
// no scope is active.
func (s *Stack) Current() Key {
	if len(s.keys) == 0 {
		return RootKey
	}
	return Key(s.keys[len(s.keys)-1])
}

func (s *Stack) IsEmpty() bool {
	return len(s.keys) == 0
}

func (s *Stack) Depth() int {
	return len(s.keys)
}
