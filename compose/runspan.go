package compose

import (
	"time"

	"github.com/rickb777/date/v2/timespan"
)

// TimeSpan is the interval covered by one recomposition pass.
type TimeSpan = timespan.TimeSpan

// NewTimeSpan builds the span between two instants.
func NewTimeSpan(from, to time.Time) TimeSpan {
	return timespan.BetweenTimes(from, to)
}

// RunSpan records when a run happened and which revision it produced.
type RunSpan struct {
	Revision int
	Span     TimeSpan
}
