package compose_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/on-the-ground/compose_ive_go/compose"
)

func TestMemoize_IdempotentRerun(t *testing.T) {
	cache := compose.New()
	executions := 0

	frame := func() string {
		return compose.Run(cache, func(cx *compose.Ctx) string {
			return compose.MemoizeAt(cx, compose.Label("greeting"), "world", func() string {
				executions++
				return fmt.Sprintf("hello %s", "world")
			})
		})
	}

	first := frame()
	second := frame()
	dump := cache.Dump()

	assert.Equal(t, "hello world", first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, executions, "unchanged args must not re-execute the body")
	assert.NotContains(t, dump, "dirty=true", "no group may stay dirty after a clean run")
	assert.Equal(t, 2, cache.Revision())
}

func TestMemoize_ChangePropagation(t *testing.T) {
	cache := compose.New()
	executions := 0

	frame := func(arg int) int {
		return compose.Run(cache, func(cx *compose.Ctx) int {
			return compose.MemoizeAt(cx, compose.Label("double"), arg, func() int {
				executions++
				return arg * 2
			})
		})
	}

	assert.Equal(t, 2, frame(1))
	assert.Equal(t, 2, frame(1))
	require.Equal(t, 1, executions)

	assert.Equal(t, 4, frame(2))
	assert.Equal(t, 2, executions, "changed args must re-execute the body")
	assert.Equal(t, 4, frame(2))
	assert.Equal(t, 2, executions)
}

func TestInvalidate_ForcesReexecution(t *testing.T) {
	cache := compose.New()
	executions := 0
	var token compose.InvalidationToken

	frame := func() int {
		return compose.Run(cache, func(cx *compose.Ctx) int {
			return compose.MemoizeAt(cx, compose.Label("button"), "same args", func() int {
				token = cx.InvalidationToken()
				executions++
				return executions
			})
		})
	}

	frame()
	frame()
	require.Equal(t, 1, executions)

	// e.g. a click handler firing between frames
	cache.Invalidate(token)
	assert.Equal(t, 2, frame(), "invalidated group must re-execute with unchanged args")
	assert.Equal(t, 2, frame(), "dirtiness must not leak into later runs")
}

func TestReorder_PreservesStateIdentity(t *testing.T) {
	cache := compose.New()
	creations := 0

	frame := func(items []int) map[int]int {
		return compose.Run(cache, func(cx *compose.Ctx) map[int]int {
			seen := make(map[int]int, len(items))
			for _, item := range items {
				item := item
				compose.ScopedAt(cx, compose.Label("item"), item, func() struct{} {
					compose.GroupAt(cx, compose.Label("row"), func(bool) struct{} {
						compose.WithStateAt(cx, compose.Label("row.state"),
							func() int {
								creations++
								return creations
							},
							func(stamp *int) struct{} {
								seen[item] = *stamp
								return struct{}{}
							})
						return struct{}{}
					})
					return struct{}{}
				})
			}
			return seen
		})
	}

	before := frame([]int{1, 2, 3})
	require.Equal(t, 3, creations)

	after := frame([]int{3, 1, 2})
	assert.Equal(t, 3, creations, "reordering must not recreate state")
	assert.Equal(t, before, after, "each item must keep the state created for it")
}

type resource struct {
	name     string
	disposed *int
}

func (r resource) Dispose() { *r.disposed++ }

func TestGarbageCollection_DisposeFiresOnce(t *testing.T) {
	cache := compose.New()
	disposed := 0

	frame := func(showDetail bool) {
		compose.Run(cache, func(cx *compose.Ctx) struct{} {
			if showDetail {
				compose.MemoizeAt(cx, compose.Label("detail"), "static", func() resource {
					return resource{name: "detail", disposed: &disposed}
				})
			}
			return struct{}{}
		})
	}

	frame(true)
	frame(true)
	require.Equal(t, 0, disposed)
	sizeWith := cache.Size()

	frame(false)
	assert.Equal(t, 1, disposed, "dropping a call site disposes its value exactly once")
	assert.Less(t, cache.Size(), sizeWith, "unvisited slots must be removed")

	frame(false)
	assert.Equal(t, 1, disposed)
}

func TestConcreteScenario_ValueOverwrittenInPlace(t *testing.T) {
	cache := compose.New()

	frame := func(v int) bool {
		return compose.Run(cache, func(cx *compose.Ctx) bool {
			return compose.GroupAt(cx, compose.Label("A"), func(bool) bool {
				return compose.ChangedAt(cx, compose.Label("A.value"), v)
			})
		})
	}

	assert.True(t, frame(1), "first visit reports changed")
	size := cache.Size()

	assert.False(t, frame(1), "unchanged value reports no change")
	assert.Equal(t, size, cache.Size(), "no insertion on an unchanged rerun")

	assert.True(t, frame(2), "new value reports changed")
	assert.Equal(t, size, cache.Size(), "overwrite happens in place")
}

func TestWithState_PersistsAcrossRuns(t *testing.T) {
	cache := compose.New()

	frame := func(delta int) int {
		return compose.Run(cache, func(cx *compose.Ctx) int {
			return compose.WithStateAt(cx, compose.Label("counter"),
				func() int { return 0 },
				func(n *int) int {
					*n += delta
					return *n
				})
		})
	}

	assert.Equal(t, 1, frame(1))
	assert.Equal(t, 2, frame(1))
	assert.Equal(t, 7, frame(5), "state persists independently of caller data")
	assert.Equal(t, 7, frame(0), "an unchanged update keeps the stored state")
}

func TestWithState_FreshStateSurvivesNoopUpdate(t *testing.T) {
	cache := compose.New()
	inits := 0

	frame := func() int {
		return compose.Run(cache, func(cx *compose.Ctx) int {
			return compose.WithStateAt(cx, compose.Label("lazy"),
				func() int {
					inits++
					return 42
				},
				func(n *int) int { return *n })
		})
	}

	assert.Equal(t, 42, frame())
	assert.Equal(t, 42, frame())
	assert.Equal(t, 1, inits, "initial value must be committed even when update is a no-op")
}

func TestRun_NestedRunPanics(t *testing.T) {
	cache := compose.New()
	assert.Panics(t, func() {
		compose.Run(cache, func(*compose.Ctx) struct{} {
			return compose.Run(cache, func(*compose.Ctx) struct{} {
				return struct{}{}
			})
		})
	})
}

func TestInvalidate_StaleTokenIsIgnored(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	cache := compose.New(compose.WithLogger(zap.New(core)))

	var token compose.InvalidationToken
	frame := func(show bool) {
		compose.Run(cache, func(cx *compose.Ctx) struct{} {
			if show {
				compose.GroupAt(cx, compose.Label("ephemeral"), func(bool) struct{} {
					token = cx.InvalidationToken()
					return struct{}{}
				})
			}
			return struct{}{}
		})
	}

	frame(true)
	frame(false) // group torn down, token now stale

	assert.NotPanics(t, func() { cache.Invalidate(token) })
	require.Equal(t, 1, logs.Len(), "stale token must be logged")
	assert.Contains(t, logs.All()[0].Message, "no such group")

	frame(false) // and the next run proceeds untouched
}

func TestExpectValue_TypeMismatchPanics(t *testing.T) {
	cache := compose.New()

	compose.Run(cache, func(cx *compose.Ctx) struct{} {
		_, _, slot := compose.ExpectValueAt[int](cx, compose.Label("slot"))
		compose.SetValue(cx, slot, 1)
		return struct{}{}
	})

	assert.Panics(t, func() {
		compose.Run(cache, func(cx *compose.Ctx) struct{} {
			// same call site now read with a different concrete type
			compose.ExpectValueAt[string](cx, compose.Label("slot"))
			return struct{}{}
		})
	})
}

func TestMemoize_NestedSkipsChildrenVerbatim(t *testing.T) {
	cache := compose.New()
	outerRuns, innerRuns := 0, 0

	frame := func(outerArg, innerArg int) int {
		return compose.Run(cache, func(cx *compose.Ctx) int {
			return compose.MemoizeAt(cx, compose.Label("outer"), outerArg, func() int {
				outerRuns++
				inner := compose.MemoizeAt(cx, compose.Label("inner"), innerArg, func() int {
					innerRuns++
					return innerArg * 100
				})
				return inner + outerArg
			})
		})
	}

	assert.Equal(t, 201, frame(1, 2))
	assert.Equal(t, 201, frame(1, 2))
	assert.Equal(t, 1, outerRuns)
	assert.Equal(t, 1, innerRuns, "a skipped parent must not revisit children")

	assert.Equal(t, 210, frame(10, 2))
	assert.Equal(t, 2, outerRuns)
	assert.Equal(t, 1, innerRuns, "inner args unchanged, its cached result is reused")

	// visitation is control-flow driven: while the outer group is
	// skipped wholesale, a change in the inner argument is not seen.
	assert.Equal(t, 210, frame(10, 3))
	assert.Equal(t, 2, outerRuns)
	assert.Equal(t, 1, innerRuns)
}

func TestRun_RecordsRevisionAndSpan(t *testing.T) {
	cache := compose.New()
	compose.Run(cache, func(*compose.Ctx) struct{} { return struct{}{} })

	span := cache.LastRun()
	assert.Equal(t, 1, span.Revision)
	assert.NotEqual(t, compose.TimeSpan{}, span.Span)
	if !strings.Contains(cache.Dump(), "StartGroup") {
		t.Fatalf("dump should render the root group:\n%s", cache.Dump())
	}
}
