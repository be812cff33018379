package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// SlotLength is the default appointment duration used by slot discovery.
	SlotLength = 30 * time.Minute

	gridFirstHour = 8
	gridLastHour  = 17 // last slot starts 17:00, the grid closes at 18:00
)

// BookedLookup returns the start times of a provider's live (non-cancelled)
// appointments that start inside window.
type BookedLookup interface {
	BookedStarts(ctx context.Context, providerID uuid.UUID, window Interval) ([]time.Time, error)
}

// SlotFinder scans a fixed hourly grid for open appointment slots.
type SlotFinder struct {
	availability AvailabilityLookup
	booked       BookedLookup
	loc          *time.Location
	now          func() time.Time
}

// NewSlotFinder returns a finder that lays the grid out in loc.
func NewSlotFinder(availability AvailabilityLookup, booked BookedLookup, loc *time.Location) *SlotFinder {
	if loc == nil {
		loc = time.UTC
	}
	return &SlotFinder{availability: availability, booked: booked, loc: loc, now: time.Now}
}

// WithClock replaces the time source.
func (f *SlotFinder) WithClock(now func() time.Time) *SlotFinder {
	f.now = now
	return f
}

// Find returns up to maxResults free slots for the provider, starting from
// the current time and looking dayHorizon days ahead (today included). Slots
// on weekends, slots whose start equals a booked appointment start and slots
// overlapping blocked availability are skipped. A short list is not an error.
func (f *SlotFinder) Find(ctx context.Context, providerID uuid.UUID, maxResults, dayHorizon int) ([]Interval, error) {
	if maxResults <= 0 || dayHorizon <= 0 {
		return nil, fmt.Errorf("max results and day horizon must be positive (got %d, %d)", maxResults, dayHorizon)
	}

	now := f.now().In(f.loc)
	today := DateOf(now)
	horizon := Interval{
		Start: today.In(f.loc),
		End:   today.AddDays(dayHorizon).In(f.loc).Add(SlotLength),
	}

	blocks, err := f.availability.OverlappingAvailability(ctx, providerID, horizon, true)
	if err != nil {
		return nil, fmt.Errorf("load blocked availability: %w", err)
	}
	var blocked []Interval
	for _, b := range blocks {
		if b.Blocked {
			blocked = append(blocked, b.Interval)
		}
	}

	starts, err := f.booked.BookedStarts(ctx, providerID, horizon)
	if err != nil {
		return nil, fmt.Errorf("load booked appointments: %w", err)
	}
	taken := make(map[int64]bool, len(starts))
	for _, s := range starts {
		taken[s.Unix()] = true
	}

	slots := make([]Interval, 0, maxResults)
	for day := 0; day < dayHorizon; day++ {
		date := today.AddDays(day)
		midnight := date.In(f.loc)
		if WeekdayOf(midnight).IsWeekend() {
			continue
		}
		for hour := gridFirstHour; hour <= gridLastHour; hour++ {
			start := time.Date(date.Year, date.Month, date.Day, hour, 0, 0, 0, f.loc)
			if !start.After(now) {
				continue
			}
			if taken[start.Unix()] {
				continue
			}
			slot := NewInterval(start, SlotLength)
			if overlapsAny(slot, blocked) {
				continue
			}
			slots = append(slots, slot)
			if len(slots) == maxResults {
				return slots, nil
			}
		}
	}
	return slots, nil
}

func overlapsAny(w Interval, set []Interval) bool {
	for _, o := range set {
		if w.Overlaps(o) {
			return true
		}
	}
	return false
}
