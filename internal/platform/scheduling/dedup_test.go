package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"
)

// memSeries stores intervals of one series identity.
type memSeries struct {
	rows    map[Interval]bool
	order   []Interval
	creates int
	// reject makes Create report a storage-level duplicate for these starts.
	reject map[time.Time]bool
}

func newMemSeries() *memSeries {
	return &memSeries{rows: make(map[Interval]bool), reject: make(map[time.Time]bool)}
}

func (m *memSeries) key(iv Interval) Interval {
	return Interval{Start: iv.Start.UTC(), End: iv.End.UTC()}
}

func (m *memSeries) Exists(_ context.Context, c Candidate) (bool, error) {
	return m.rows[m.key(c.Interval)], nil
}

func (m *memSeries) Create(_ context.Context, c Candidate) (bool, error) {
	m.creates++
	if m.reject[c.Start.UTC()] {
		return false, nil
	}
	k := m.key(c.Interval)
	m.rows[k] = true
	m.order = append(m.order, k)
	return true, nil
}

func TestShouldCreate(t *testing.T) {
	ctx := context.Background()
	store := newMemSeries()
	c := Candidate{Index: 1, Interval: NewInterval(at(9, 0), 30*time.Minute)}

	ok, err := ShouldCreate(ctx, c, store)
	if err != nil || !ok {
		t.Fatalf("expected create for new candidate, got %v %v", ok, err)
	}
	store.Create(ctx, c)
	ok, err = ShouldCreate(ctx, c, store)
	if err != nil || ok {
		t.Fatalf("expected skip for stored candidate, got %v %v", ok, err)
	}

	// Same start, different end is a different record.
	longer := Candidate{Index: 1, Interval: NewInterval(at(9, 0), time.Hour)}
	if ok, _ := ShouldCreate(ctx, longer, store); !ok {
		t.Error("expected create when end differs")
	}
}

func TestShouldCreate_LookupError(t *testing.T) {
	boom := errors.New("connection reset")
	store := SeriesStoreFuncs{
		ExistsFunc: func(context.Context, Candidate) (bool, error) { return false, boom },
		CreateFunc: func(context.Context, Candidate) (bool, error) { return true, nil },
	}
	_, err := ShouldCreate(context.Background(), Candidate{Interval: NewInterval(at(9, 0), time.Minute)}, store)
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped lookup error, got %v", err)
	}
}

func TestMaterialize_IdempotentReexpansion(t *testing.T) {
	ctx := context.Background()
	anchor := anchorAt(2024, 3, 29, 10, 0, 30*time.Minute)
	rule := Rule{Frequency: FrequencyDaily, EndDate: mustDate(t, "2024-04-12")}
	cal := NewExclusionCalendar(nil, []Date{*mustDate(t, "2024-04-05")})
	store := newMemSeries()

	first, err := Materialize(ctx, anchor, rule, KindAppointment, cal, store)
	if err != nil {
		t.Fatal(err)
	}
	// Apr 1-12 has 10 weekdays, one of them a holiday.
	if first.CreatedCount() != 9 {
		t.Fatalf("expected 9 children, got %d", first.CreatedCount())
	}
	if first.Skipped[ReasonHoliday] != 1 || first.Skipped[ReasonWeekend] != 4 {
		t.Errorf("unexpected skips %v", first.Skipped)
	}

	second, err := Materialize(ctx, anchor, rule, KindAppointment, cal, store)
	if err != nil {
		t.Fatal(err)
	}
	if second.CreatedCount() != 0 {
		t.Errorf("re-expansion created %d children", second.CreatedCount())
	}
	if second.Skipped[ReasonDuplicate] != 9 {
		t.Errorf("expected 9 duplicates, got %d", second.Skipped[ReasonDuplicate])
	}
	if len(store.rows) != 9 || store.creates != 9 {
		t.Errorf("expected 9 stored rows from 9 creates, got %d rows %d creates", len(store.rows), store.creates)
	}
}

func TestMaterialize_PartialSeries(t *testing.T) {
	ctx := context.Background()
	anchor := anchorAt(2024, 1, 1, 9, 0, 30*time.Minute)
	rule := Rule{Frequency: FrequencyWeekly, EndDate: mustDate(t, "2024-01-29")}
	store := newMemSeries()
	store.Create(ctx, Candidate{Interval: NewInterval(time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC), 30*time.Minute)})

	res, err := Materialize(ctx, anchor, rule, KindAvailability, ExclusionCalendar{}, store)
	if err != nil {
		t.Fatal(err)
	}
	if res.CreatedCount() != 3 || res.Skipped[ReasonDuplicate] != 1 {
		t.Errorf("expected 3 created and 1 duplicate, got %d and %d", res.CreatedCount(), res.Skipped[ReasonDuplicate])
	}
}

func TestMaterialize_AscendingOrder(t *testing.T) {
	ctx := context.Background()
	anchor := anchorAt(2024, 1, 31, 9, 0, 30*time.Minute)
	store := newMemSeries()

	res, err := Materialize(ctx, anchor, Rule{Frequency: FrequencyMonthly, EndDate: mustDate(t, "2024-12-31")}, KindAppointment, ExclusionCalendar{}, store)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(store.order); i++ {
		if !store.order[i].Start.After(store.order[i-1].Start) {
			t.Fatalf("create %d at %s is not after %s", i, store.order[i].Start, store.order[i-1].Start)
		}
	}
	if res.CreatedCount() == 0 || DateOf(res.Created[0].Start).String() != "2024-02-29" {
		t.Errorf("expected first child on 2024-02-29, got %v", res.Created)
	}
}

func TestMaterialize_StorageRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	anchor := anchorAt(2024, 1, 1, 9, 0, 30*time.Minute)
	store := newMemSeries()
	store.reject[time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)] = true

	res, err := Materialize(ctx, anchor, Rule{Frequency: FrequencyWeekly, EndDate: mustDate(t, "2024-01-15")}, KindAppointment, ExclusionCalendar{}, store)
	if err != nil {
		t.Fatal(err)
	}
	if res.CreatedCount() != 1 || res.Skipped[ReasonDuplicate] != 1 {
		t.Errorf("expected 1 created and 1 duplicate, got %d and %v", res.CreatedCount(), res.Skipped)
	}
}

func TestMaterialize_CreateErrorPropagates(t *testing.T) {
	boom := errors.New("disk full")
	store := SeriesStoreFuncs{
		ExistsFunc: func(context.Context, Candidate) (bool, error) { return false, nil },
		CreateFunc: func(context.Context, Candidate) (bool, error) { return false, boom },
	}
	anchor := anchorAt(2024, 1, 1, 9, 0, 30*time.Minute)
	_, err := Materialize(context.Background(), anchor, Rule{Frequency: FrequencyDaily, EndDate: mustDate(t, "2024-01-05")}, KindAppointment, ExclusionCalendar{}, store)
	if !errors.Is(err, boom) {
		t.Errorf("expected storage error, got %v", err)
	}
}

func TestMaterialize_NoneCreatesNothing(t *testing.T) {
	store := newMemSeries()
	res, err := Materialize(context.Background(), anchorAt(2024, 1, 1, 9, 0, time.Hour), Rule{}, KindAvailability, ExclusionCalendar{}, store)
	if err != nil {
		t.Fatal(err)
	}
	if res.CreatedCount() != 0 || store.creates != 0 {
		t.Error("expected no children for a non-recurring anchor")
	}
}
