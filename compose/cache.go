package compose

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/on-the-ground/compose_ive_go/compose/internal/callkey"
	"github.com/on-the-ground/compose_ive_go/compose/internal/slottable"
)

// InvalidationToken is a copyable handle to the group that was open
// when the token was obtained. Invalidating it forces the group's body
// to re-execute on the next run even if its arguments are unchanged.
type InvalidationToken struct {
	group slottable.GroupID
}

// Cache owns a slot table between runs and spins up a writer for each
// run. It is a single-writer, single-goroutine object: exactly one Run
// may be active on a given instance at a time, enforced by taking the
// table out of the facade for the duration of the run.
type Cache struct {
	id       string
	table    *slottable.Table
	logger   *zap.Logger
	revision int
	lastRun  RunSpan
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger installs the logger used for run lifecycle debug logs and
// stale-invalidation warnings. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		id:     uuid.New().String(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("cacheId", c.id))
	c.table = slottable.NewTable(c.logger)
	return c
}

// Invalidate marks the token's group dirty, along with every ancestor
// group, guaranteeing the next run redescends into that subtree. Tokens
// whose group has already been garbage-collected are logged and
// ignored: a stale token is an expected race between teardown and
// queued invalidations, not an error.
//
// Must be called between runs; calling it while a Run is active on this
// cache is a programming error.
func (c *Cache) Invalidate(token InvalidationToken) {
	if c.table == nil {
		panic("compose: Invalidate while a run is in progress")
	}
	c.table.Invalidate(token.group)
}

// Revision returns the number of completed runs.
func (c *Cache) Revision() int {
	return c.revision
}

// LastRun returns timing information about the most recent run.
func (c *Cache) LastRun() RunSpan {
	return c.lastRun
}

// Size returns the number of slots currently stored. Must be called
// between runs.
func (c *Cache) Size() int {
	if c.table == nil {
		panic("compose: Size while a run is in progress")
	}
	return c.table.Len()
}

// Dump renders the stored slot table for debugging. Must be called
// between runs.
func (c *Cache) Dump() string {
	if c.table == nil {
		panic("compose: Dump while a run is in progress")
	}
	return c.table.Dump(-1)
}

// Ctx is the composition context of one run: the table writer plus the
// call key stack that scopes call-site identities. It is passed
// explicitly into every composable call rather than living in ambient
// global state, and must not escape the run that created it.
type Ctx struct {
	keys   *callkey.Stack
	writer *slottable.Writer
}

// InvalidationToken returns a token for the currently open group, i.e.
// the group of the value being calculated.
func (cx *Ctx) InvalidationToken() InvalidationToken {
	return InvalidationToken{group: cx.writer.InvalidationToken()}
}

// Run executes one recomposition pass: it wraps the stored table in a
// fresh writer, installs a fresh key stack, invokes fn, asserts the key
// stack is balanced, and stores the finished table back. Returns fn's
// result.
//
// A second Run on the same cache before the first returns panics.
func Run[T any](c *Cache, fn func(*Ctx) T) T {
	if c.table == nil {
		panic("compose: Run while another run is in progress")
	}
	table := c.table
	c.table = nil

	started := time.Now()
	cx := &Ctx{
		keys:   callkey.NewStack(),
		writer: slottable.NewWriter(table),
	}

	result := fn(cx)

	if !cx.keys.IsEmpty() {
		panic("compose: unbalanced call key stack at end of run")
	}
	c.table = cx.writer.Finish()
	c.revision++
	c.lastRun = RunSpan{
		Revision: c.revision,
		Span:     NewTimeSpan(started, time.Now()),
	}
	c.logger.Debug("run finished",
		zap.Int("revision", c.revision),
		zap.Int("slots", c.table.Len()),
		zap.Int("groups", c.table.GroupCount()),
	)
	return result
}
