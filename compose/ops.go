package compose

import (
	"github.com/on-the-ground/compose_ive_go/compose/internal/callkey"
	"github.com/on-the-ground/compose_ive_go/shared/helper"
)

// CallKey is the derived identity of one dynamic call, based on its
// source location and the two nearest enclosing scopes.
type CallKey = callkey.Key

// Location is the static call-site token fed into call key derivation.
type Location = callkey.Location

// Here captures the location of the calling statement.
func Here() Location {
	return callkey.Caller(1)
}

// Label builds a manually-assigned location token, for call sites where
// runtime caller capture is not stable or not available.
func Label(name string) Location {
	return callkey.Label(name)
}

// CurrentCallKey returns the identity of the call currently being made.
func CurrentCallKey(cx *Ctx) CallKey {
	return cx.keys.Current()
}

// Scoped runs fn inside a key scope disambiguated by index. Use it
// around loop bodies so that each iteration gets its own call-site
// identity.
func Scoped[R any](cx *Ctx, index int, fn func() R) R {
	return ScopedAt(cx, callkey.Caller(1), index, fn)
}

// ScopedAt is Scoped with an explicit location token.
func ScopedAt[R any](cx *Ctx, loc Location, index int, fn func() R) R {
	cx.keys.Enter(loc, index)
	r := fn()
	cx.keys.Exit()
	return r
}

// Group runs fn inside a group keyed by the caller's call site. fn
// receives the group's dirty flag, set when an invalidation token
// targeted the group since its last visit.
func Group[R any](cx *Ctx, fn func(dirty bool) R) R {
	return GroupAt(cx, callkey.Caller(1), fn)
}

// GroupAt is Group with an explicit location token.
func GroupAt[R any](cx *Ctx, loc Location, fn func(dirty bool) R) R {
	cx.keys.Enter(loc, 0)
	dirty := cx.writer.StartGroup(cx.keys.Current())
	r := fn(dirty)
	cx.writer.EndGroup()
	cx.keys.Exit()
	return r
}

// Changed stores value in the slot keyed by the caller's call site and
// reports whether it differs from the previously stored value. This is
// the primitive behind memoized function arguments.
func Changed(cx *Ctx, value any) bool {
	return ChangedAt(cx, callkey.Caller(1), value)
}

// ChangedAt is Changed with an explicit location token.
func ChangedAt(cx *Ctx, loc Location, value any) bool {
	cx.keys.Enter(loc, 0)
	changed := cx.writer.CompareAndUpdateValue(cx.keys.Current(), value)
	cx.keys.Exit()
	return changed
}

// ExpectValue reads the value slot at the current position, reserving a
// placeholder if the value has not been computed yet this pass. The
// returned index addresses the slot for SetValue.
func ExpectValue[T any](cx *Ctx) (T, bool, int) {
	return ExpectValueAt[T](cx, callkey.Caller(1))
}

// ExpectValueAt is ExpectValue with an explicit location token.
func ExpectValueAt[T any](cx *Ctx, loc Location) (T, bool, int) {
	cx.keys.Enter(loc, 0)
	raw, ok, slot := cx.writer.ExpectValue(cx.keys.Current())
	cx.keys.Exit()

	var val T
	if ok {
		val = helper.MustGetTypedValue[T](func() (any, error) {
			return raw, nil
		})
	}
	return val, ok, slot
}

// SetValue commits a value into a slot previously reserved or read by
// ExpectValue.
func SetValue[T any](cx *Ctx, slot int, value T) {
	cx.writer.SetValue(slot, value)
}

// SkipToEndOfGroup advances the cursor to the end of the currently open
// group without comparing anything, reusing its slots verbatim.
func SkipToEndOfGroup(cx *Ctx) {
	cx.writer.SkipUntilEndOfGroup()
}

// Memoize is the central building block for composable functions. It
// opens a group keyed by the caller's call site, compares args against
// the previously cached arguments, and re-executes fn only when the
// group was invalidated or the arguments changed. Otherwise the
// previously stored result is returned and the group's slots are
// reused verbatim.
func Memoize[A, T any](cx *Ctx, args A, fn func() T) T {
	return MemoizeAt(cx, callkey.Caller(1), args, fn)
}

// MemoizeAt is Memoize with an explicit location token.
func MemoizeAt[A, T any](cx *Ctx, loc Location, args A, fn func() T) T {
	return GroupAt(cx, loc, func(dirty bool) T {
		argsChanged := ChangedAt(cx, memoizeArgsLoc, args)
		prev, ok, slot := ExpectValueAt[T](cx, memoizeResultLoc)

		if !dirty && !argsChanged {
			SkipToEndOfGroup(cx)
			if !ok {
				panic("compose: memoize: no changes in arguments but no value calculated")
			}
			return prev
		}

		value := fn()
		cx.writer.SetValue(slot, value)
		return value
	})
}

// WithState retrieves or initializes a persistent state value by
// position. Unlike Memoize, the value is independent of caller-provided
// data: it survives across runs until its call site disappears. update
// receives the current value and may mutate it; the mutated value is
// written back when it differs from the previous one.
//
// State values are copied by assignment for the pre/post comparison, so
// they should be value-like or implement Equatable.
func WithState[T, R any](cx *Ctx, init func() T, update func(*T) R) R {
	return WithStateAt(cx, callkey.Caller(1), init, update)
}

// WithStateAt is WithState with an explicit location token.
func WithStateAt[T, R any](cx *Ctx, loc Location, init func() T, update func(*T) R) R {
	value, ok, slot := ExpectValueAt[T](cx, loc)
	fresh := !ok
	if fresh {
		value = init()
	}
	old := value

	r := update(&value)

	// A freshly initialized state is always committed, otherwise its
	// placeholder would never become a value and the state would be
	// re-initialized on every run.
	if fresh || !Same(old, value) {
		cx.writer.SetValue(slot, value)
	}
	return r
}

// Internal location tokens for the slots memoize keeps inside its
// group. They are constant: uniqueness comes from the enclosing scope
// chain, not from the token itself.
var (
	memoizeArgsLoc   = callkey.Label("compose.memoize.args")
	memoizeResultLoc = callkey.Label("compose.memoize.result")
)
