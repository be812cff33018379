package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeBooked struct {
	starts []time.Time
	err    error
}

func (f *fakeBooked) BookedStarts(_ context.Context, _ uuid.UUID, _ Interval) ([]time.Time, error) {
	return f.starts, f.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func utc(y int, m time.Month, d, hour, min int) time.Time {
	return time.Date(y, m, d, hour, min, 0, 0, time.UTC)
}

func TestSlotFinder_Find(t *testing.T) {
	doc := uuid.New()
	avail := &fakeAvailability{}
	avail.add(doc, Interval{utc(2024, 4, 1, 9, 15), utc(2024, 4, 1, 9, 45)}, true)
	// An open entry never removes a slot.
	avail.add(doc, Interval{utc(2024, 4, 1, 10, 0), utc(2024, 4, 1, 12, 0)}, false)
	booked := &fakeBooked{starts: []time.Time{
		utc(2024, 4, 1, 8, 0),
		utc(2024, 4, 1, 11, 15), // not on the grid, does not consume 11:00
	}}

	// Friday afternoon.
	f := NewSlotFinder(avail, booked, time.UTC).WithClock(fixedClock(utc(2024, 3, 29, 16, 30)))
	slots, err := f.Find(context.Background(), doc, 4, 14)
	if err != nil {
		t.Fatal(err)
	}

	want := []time.Time{
		utc(2024, 3, 29, 17, 0),
		utc(2024, 4, 1, 10, 0),
		utc(2024, 4, 1, 11, 0),
		utc(2024, 4, 1, 12, 0),
	}
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %d: %v", len(want), len(slots), slots)
	}
	for i, w := range want {
		if !slots[i].Start.Equal(w) {
			t.Errorf("slot %d: expected %s, got %s", i, w, slots[i].Start)
		}
		if slots[i].Duration() != SlotLength {
			t.Errorf("slot %d: duration %s", i, slots[i].Duration())
		}
	}
}

func TestSlotFinder_ChronologicalAndUnique(t *testing.T) {
	f := NewSlotFinder(&fakeAvailability{}, &fakeBooked{}, time.UTC).WithClock(fixedClock(utc(2024, 1, 8, 7, 0)))
	slots, err := f.Find(context.Background(), uuid.New(), 25, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 25 {
		t.Fatalf("expected 25 slots, got %d", len(slots))
	}
	seen := make(map[time.Time]bool)
	for i, s := range slots {
		if seen[s.Start] {
			t.Fatalf("slot %s returned twice", s.Start)
		}
		seen[s.Start] = true
		if i > 0 && !s.Start.After(slots[i-1].Start) {
			t.Fatalf("slot %d out of order", i)
		}
		if h := s.Start.Hour(); h < 8 || h > 17 {
			t.Errorf("slot %s outside the grid", s.Start)
		}
	}
	// Ten slots a day: the 25th slot is Wednesday 12:00.
	if last := slots[24].Start; !last.Equal(utc(2024, 1, 10, 12, 0)) {
		t.Errorf("expected last slot Wed 12:00, got %s", last)
	}
}

func TestSlotFinder_ShortListWhenHorizonExhausted(t *testing.T) {
	f := NewSlotFinder(&fakeAvailability{}, &fakeBooked{}, time.UTC).WithClock(fixedClock(utc(2024, 3, 29, 16, 30)))
	slots, err := f.Find(context.Background(), uuid.New(), 5, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 1 || !slots[0].Start.Equal(utc(2024, 3, 29, 17, 0)) {
		t.Errorf("expected only Friday 17:00, got %v", slots)
	}
}

func TestSlotFinder_WeekendOnlyHorizon(t *testing.T) {
	f := NewSlotFinder(&fakeAvailability{}, &fakeBooked{}, time.UTC).WithClock(fixedClock(utc(2024, 3, 30, 6, 0)))
	slots, err := f.Find(context.Background(), uuid.New(), 5, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 0 {
		t.Errorf("expected no slots over a weekend, got %v", slots)
	}
}

func TestSlotFinder_Location(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	// 12:30 UTC is 07:30 local; the first slot is 08:00 local.
	f := NewSlotFinder(&fakeAvailability{}, &fakeBooked{}, loc).WithClock(fixedClock(utc(2024, 1, 8, 12, 30)))
	slots, err := f.Find(context.Background(), uuid.New(), 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 1 || !slots[0].Start.Equal(utc(2024, 1, 8, 13, 0)) {
		t.Errorf("expected 13:00 UTC, got %v", slots)
	}
}

func TestSlotFinder_Errors(t *testing.T) {
	f := NewSlotFinder(&fakeAvailability{}, &fakeBooked{}, time.UTC)
	if _, err := f.Find(context.Background(), uuid.New(), 0, 14); err == nil {
		t.Error("expected error for zero max results")
	}
	if _, err := f.Find(context.Background(), uuid.New(), 5, 0); err == nil {
		t.Error("expected error for zero horizon")
	}

	boom := errors.New("gone")
	f = NewSlotFinder(&fakeAvailability{}, &fakeBooked{err: boom}, time.UTC)
	if _, err := f.Find(context.Background(), uuid.New(), 5, 14); !errors.Is(err, boom) {
		t.Errorf("expected booked lookup error, got %v", err)
	}
	f = NewSlotFinder(&fakeAvailability{err: boom}, &fakeBooked{}, time.UTC)
	if _, err := f.Find(context.Background(), uuid.New(), 5, 14); !errors.Is(err, boom) {
		t.Errorf("expected availability lookup error, got %v", err)
	}
}
