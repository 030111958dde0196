// Package compose provides a positional incremental-memoization cache:
// a slot table that lets a tree of function calls re-execute on every
// run while reusing prior results whenever their inputs are unchanged.
//
// # How it works
//
// A Cache owns a flat sequence of typed slots (group starts, group
// ends, values) that is the pre-order flattening of the call tree from
// the most recent run. Run wraps the table in a cursor, executes the
// root function, and every Memoize call along the way:
//
//   - enters a key scope derived from its call site and the two nearest
//     enclosing scopes,
//   - opens a group in the table, rotating the group's previous slots
//     under the cursor if sibling calls were reordered,
//   - compares its arguments against the cached ones, and either skips
//     the group wholesale or re-executes its body and commits the result.
//
// Call sites absent from a run are garbage-collected when their
// enclosing group closes. Insertion, deletion and reordering of calls
// between runs are all handled positionally: a slot found at distance d
// from the cursor costs O(d) to rotate into place, never a rebuild.
//
// # State and invalidation
//
// WithState holds mutable values that persist across runs independently
// of arguments (e.g. a counter). InvalidationToken lets code outside
// the run, typically an event handler, mark the group that produced a
// value dirty, forcing its body to re-execute on the next run.
//
// # Errors
//
// Recoverable failures do not exist in this package: unbalanced scopes,
// slot-shape mismatches and type-erased downcast failures are bugs in
// the calling code and panic. The one benign case is invalidating a
// group that was already garbage-collected, which is logged and
// ignored.
//
// The cache is a single-writer, single-goroutine structure; one Run at
// a time per Cache, no internal synchronization.
package compose
