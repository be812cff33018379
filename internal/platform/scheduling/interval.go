// Package scheduling implements the recurrence expansion and availability
// conflict engine: interval math, exclusion calendars, bounded recurrence
// expansion, duplicate suppression, coverage/blocked-time validation and
// free-slot discovery. It holds no storage of its own; persistence is reached
// through the small interfaces declared next to each operation.
package scheduling

import (
	"fmt"
	"time"
)

// Interval is a half-open time window [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewInterval builds the window that starts at start and lasts d.
func NewInterval(start time.Time, d time.Duration) Interval {
	return Interval{Start: start, End: start.Add(d)}
}

// Duration returns End - Start.
func (i Interval) Duration() time.Duration { return i.End.Sub(i.Start) }

// Validate reports an error unless End is strictly after Start.
func (i Interval) Validate() error {
	if i.Start.IsZero() || i.End.IsZero() {
		return fmt.Errorf("interval start and end are required")
	}
	if !i.End.After(i.Start) {
		return fmt.Errorf("interval end %s must be after start %s",
			i.End.Format(time.RFC3339), i.Start.Format(time.RFC3339))
	}
	return nil
}

// Overlaps applies Overlaps to the two windows.
func (i Interval) Overlaps(o Interval) bool {
	return Overlaps(i.Start, i.End, o.Start, o.End)
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) share any instant.
// Windows that only touch (aEnd == bStart) do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

func (i Interval) String() string {
	return i.Start.Format(time.RFC3339) + "/" + i.End.Format(time.RFC3339)
}
