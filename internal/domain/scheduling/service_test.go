package scheduling

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	engine "github.com/clinicsched/scheduler/internal/platform/scheduling"
)

// -- Mock Repositories --

type mockAppointmentRepo struct {
	appts map[uuid.UUID]*Appointment
}

func newMockAppointmentRepo() *mockAppointmentRepo {
	return &mockAppointmentRepo{appts: make(map[uuid.UUID]*Appointment)}
}

func (m *mockAppointmentRepo) liveCollision(a *Appointment) bool {
	for _, o := range m.appts {
		if o.Status != StatusCancelled && o.ProviderID == a.ProviderID &&
			o.StartTime.Equal(a.StartTime) && o.EndTime.Equal(a.EndTime) {
			return true
		}
	}
	return false
}

func (m *mockAppointmentRepo) insert(a *Appointment) {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.appts[a.ID] = a
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	if m.liveCollision(a) {
		return ErrWindowTaken
	}
	m.insert(a)
	return nil
}

func (m *mockAppointmentRepo) CreateIfAbsent(_ context.Context, a *Appointment) (bool, error) {
	if m.liveCollision(a) {
		return false, nil
	}
	m.insert(a)
	return true, nil
}

func (m *mockAppointmentRepo) Exists(_ context.Context, id AppointmentIdentity, w engine.Interval) (bool, error) {
	for _, a := range m.appts {
		if a.Identity() == id && a.StartTime.Equal(w.Start) && a.EndTime.Equal(w.End) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (m *mockAppointmentRepo) List(_ context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	var result []*Appointment
	for _, a := range m.appts {
		switch {
		case f.OrganizationID != uuid.Nil && a.OrganizationID != f.OrganizationID,
			f.ProviderID != uuid.Nil && a.ProviderID != f.ProviderID,
			f.PatientID != uuid.Nil && a.PatientID != f.PatientID,
			f.Status != "" && a.Status != f.Status,
			f.From != nil && !a.EndTime.After(*f.From),
			f.To != nil && !a.StartTime.Before(*f.To):
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartTime.Before(result[j].StartTime) })
	total := len(result)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return result[offset:end], total, nil
}

func (m *mockAppointmentRepo) UpdateStatus(_ context.Context, id uuid.UUID, status AppointmentStatus) error {
	a, ok := m.appts[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	return nil
}

func (m *mockAppointmentRepo) BookedStarts(_ context.Context, providerID uuid.UUID, w engine.Interval) ([]time.Time, error) {
	var out []time.Time
	for _, a := range m.appts {
		if a.ProviderID == providerID && a.Status != StatusCancelled &&
			!a.StartTime.Before(w.Start) && a.StartTime.Before(w.End) {
			out = append(out, a.StartTime)
		}
	}
	return out, nil
}

func (m *mockAppointmentRepo) DueReminders(_ context.Context, from, to time.Time) ([]*Appointment, error) {
	var out []*Appointment
	for _, a := range m.appts {
		if a.Status == StatusScheduled && a.ReminderSentAt == nil &&
			!a.StartTime.Before(from) && a.StartTime.Before(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAppointmentRepo) MarkReminderSent(_ context.Context, id uuid.UUID, at time.Time) error {
	a, ok := m.appts[id]
	if !ok {
		return ErrNotFound
	}
	a.ReminderSentAt = &at
	return nil
}

type mockAvailabilityRepo struct {
	blocks map[uuid.UUID]*AvailabilityBlock
}

func newMockAvailabilityRepo() *mockAvailabilityRepo {
	return &mockAvailabilityRepo{blocks: make(map[uuid.UUID]*AvailabilityBlock)}
}

func (m *mockAvailabilityRepo) collision(b *AvailabilityBlock) bool {
	for _, o := range m.blocks {
		if o.Identity() == b.Identity() && o.StartTime.Equal(b.StartTime) && o.EndTime.Equal(b.EndTime) {
			return true
		}
	}
	return false
}

func (m *mockAvailabilityRepo) Create(_ context.Context, b *AvailabilityBlock) error {
	if m.collision(b) {
		return ErrWindowTaken
	}
	b.ID = uuid.New()
	m.blocks[b.ID] = b
	return nil
}

func (m *mockAvailabilityRepo) CreateIfAbsent(ctx context.Context, b *AvailabilityBlock) (bool, error) {
	if m.collision(b) {
		return false, nil
	}
	return true, m.Create(ctx, b)
}

func (m *mockAvailabilityRepo) Exists(_ context.Context, id AvailabilityIdentity, w engine.Interval) (bool, error) {
	for _, b := range m.blocks {
		if b.Identity() == id && b.StartTime.Equal(w.Start) && b.EndTime.Equal(w.End) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockAvailabilityRepo) GetByID(_ context.Context, id uuid.UUID) (*AvailabilityBlock, error) {
	b, ok := m.blocks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func (m *mockAvailabilityRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.blocks[id]; !ok {
		return ErrNotFound
	}
	delete(m.blocks, id)
	return nil
}

func (m *mockAvailabilityRepo) List(_ context.Context, f AvailabilityFilter, limit, offset int) ([]*AvailabilityBlock, int, error) {
	var result []*AvailabilityBlock
	for _, b := range m.blocks {
		switch {
		case f.OrganizationID != uuid.Nil && b.OrganizationID != f.OrganizationID,
			f.ProviderID != uuid.Nil && b.ProviderID != f.ProviderID,
			f.BlockedOnly && !b.IsBlocked,
			f.From != nil && !b.EndTime.After(*f.From),
			f.To != nil && !b.StartTime.Before(*f.To):
			continue
		}
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartTime.Before(result[j].StartTime) })
	total := len(result)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return result[offset:end], total, nil
}

func (m *mockAvailabilityRepo) Overlapping(_ context.Context, providerID uuid.UUID, w engine.Interval, blockedOnly bool) ([]*AvailabilityBlock, error) {
	var out []*AvailabilityBlock
	for _, b := range m.blocks {
		if b.ProviderID == providerID && (!blockedOnly || b.IsBlocked) && b.Window().Overlaps(w) {
			out = append(out, b)
		}
	}
	return out, nil
}

type mockDirectory struct {
	providers map[uuid.UUID]Participant
	patients  map[uuid.UUID]Participant
}

func (d *mockDirectory) Provider(_ context.Context, id uuid.UUID) (Participant, bool, error) {
	p, ok := d.providers[id]
	return p, ok, nil
}

func (d *mockDirectory) Patient(_ context.Context, id uuid.UUID) (Participant, bool, error) {
	p, ok := d.patients[id]
	return p, ok, nil
}

type mockExclusions struct {
	loc      *time.Location
	blocked  []engine.Weekday
	holidays []engine.Date
	calls    int
}

func (m *mockExclusions) Location(context.Context, uuid.UUID) (*time.Location, error) {
	if m.loc == nil {
		return time.UTC, nil
	}
	return m.loc, nil
}

func (m *mockExclusions) ExclusionCalendar(_ context.Context, _ uuid.UUID, _, _ engine.Date) (engine.ExclusionCalendar, error) {
	m.calls++
	return engine.NewExclusionCalendar(m.blocked, m.holidays), nil
}

type passLocker struct{ calls int }

func (l *passLocker) WithProviderLock(ctx context.Context, _ uuid.UUID, fn func(context.Context) error) error {
	l.calls++
	return fn(ctx)
}

// -- Fixture --

type fixture struct {
	svc        *Service
	appts      *mockAppointmentRepo
	avail      *mockAvailabilityRepo
	exclusions *mockExclusions
	locker     *passLocker
	org        uuid.UUID
	provider   Participant
	patient    Participant
}

func newFixture() *fixture {
	f := &fixture{
		appts:      newMockAppointmentRepo(),
		avail:      newMockAvailabilityRepo(),
		exclusions: &mockExclusions{},
		locker:     &passLocker{},
		org:        uuid.New(),
	}
	f.provider = Participant{ID: uuid.New(), Name: "Dr. Grey", OrganizationID: f.org}
	f.patient = Participant{ID: uuid.New(), Name: "Ana Ruiz", Email: "ana@example.com", OrganizationID: f.org}
	dir := &mockDirectory{
		providers: map[uuid.UUID]Participant{f.provider.ID: f.provider},
		patients:  map[uuid.UUID]Participant{f.patient.ID: f.patient},
	}
	f.svc = NewService(f.appts, f.avail, dir, f.exclusions, f.locker, zerolog.Nop())
	return f
}


func at(day, hour int) time.Time {
	return time.Date(2024, time.July, day, hour, 0, 0, 0, time.UTC)
}

func date(y int, m time.Month, d int) *engine.Date {
	v := engine.Date{Year: y, Month: m, Day: d}
	return &v
}

// open adds an open availability entry for the fixture provider.
func (f *fixture) open(start, end time.Time) {
	f.avail.Create(context.Background(), &AvailabilityBlock{
		OrganizationID: f.org, ProviderID: f.provider.ID, StartTime: start, EndTime: end, Frequency: engine.FrequencyNone,
	})
}

func (f *fixture) block(start, end time.Time) {
	f.avail.Create(context.Background(), &AvailabilityBlock{
		OrganizationID: f.org, ProviderID: f.provider.ID, StartTime: start, EndTime: end, IsBlocked: true, Frequency: engine.FrequencyNone,
	})
}

func (f *fixture) input(start time.Time, rule engine.Rule) AppointmentInput {
	return AppointmentInput{
		ProviderID: f.provider.ID,
		PatientID:  f.patient.ID,
		Title:      "Follow-up",
		Start:      start,
		End:        start.Add(30 * time.Minute),
		Rule:       rule,
	}
}

// -- Appointment Tests --

func TestService_CreateAppointment_Single(t *testing.T) {
	f := newFixture()
	f.open(at(1, 9), at(1, 17))

	b, err := f.svc.CreateAppointment(context.Background(), f.input(at(1, 10), engine.Rule{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Appointment.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if b.Appointment.Frequency != engine.FrequencyNone {
		t.Errorf("expected frequency none, got %q", b.Appointment.Frequency)
	}
	if b.CreatedCount != 0 || len(b.Children) != 0 {
		t.Errorf("expected no children, got %d", b.CreatedCount)
	}
	if f.exclusions.calls != 0 {
		t.Error("expected no exclusion lookup for a single appointment")
	}
	if f.locker.calls != 1 {
		t.Errorf("expected one provider lock, got %d", f.locker.calls)
	}
	if b.Patient.Email != "ana@example.com" {
		t.Errorf("expected resolved patient, got %+v", b.Patient)
	}
}

func TestService_CreateAppointment_NoCoverage(t *testing.T) {
	f := newFixture()
	f.open(at(2, 9), at(2, 17))

	_, err := f.svc.CreateAppointment(context.Background(), f.input(at(1, 10), engine.Rule{}))
	var nc *engine.NoCoverageError
	if !errors.As(err, &nc) {
		t.Fatalf("expected NoCoverageError, got %v", err)
	}
	if nc.ProviderName != "Dr. Grey" {
		t.Errorf("expected provider name in error, got %q", nc.ProviderName)
	}
	if len(f.appts.appts) != 0 {
		t.Error("expected nothing persisted")
	}
}

func TestService_CreateAppointment_Blocked(t *testing.T) {
	f := newFixture()
	f.open(at(1, 9), at(1, 17))
	f.block(at(1, 12), at(1, 13))

	in := f.input(at(1, 12), engine.Rule{})
	in.Start = at(1, 11).Add(45 * time.Minute)
	in.End = in.Start.Add(30 * time.Minute)
	_, err := f.svc.CreateAppointment(context.Background(), in)
	var bt *engine.BlockedTimeError
	if !errors.As(err, &bt) {
		t.Fatalf("expected BlockedTimeError, got %v", err)
	}
	if len(f.appts.appts) != 0 {
		t.Error("expected nothing persisted")
	}
}

func TestService_CreateAppointment_BlockedOnlyCoverageIsBlocked(t *testing.T) {
	f := newFixture()
	f.block(at(1, 9), at(1, 17))

	_, err := f.svc.CreateAppointment(context.Background(), f.input(at(1, 10), engine.Rule{}))
	var bt *engine.BlockedTimeError
	if !errors.As(err, &bt) {
		t.Fatalf("expected BlockedTimeError, got %v", err)
	}
}

func TestService_CreateAppointment_WeeklySeries(t *testing.T) {
	f := newFixture()
	f.open(at(1, 9), at(1, 17))

	rule := engine.Rule{Frequency: engine.FrequencyWeekly, EndDate: date(2024, time.July, 29)}
	b, err := f.svc.CreateAppointment(context.Background(), f.input(at(1, 10), rule))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.CreatedCount != 4 {
		t.Fatalf("expected 4 children, got %d", b.CreatedCount)
	}
	for i, c := range b.Children {
		want := at(8+7*i, 10)
		if !c.StartTime.Equal(want) {
			t.Errorf("child %d: expected %s, got %s", i, want, c.StartTime)
		}
		if c.Frequency != engine.FrequencyNone || c.RecurrenceEndDate != nil {
			t.Errorf("child %d should not recur", i)
		}
		if c.EndTime.Sub(c.StartTime) != 30*time.Minute {
			t.Errorf("child %d: duration %s", i, c.EndTime.Sub(c.StartTime))
		}
	}
	if b.Skipped[engine.ReasonPastEndDate] != 19 {
		t.Errorf("expected 19 candidates past end date, got %d", b.Skipped[engine.ReasonPastEndDate])
	}
	if b.Appointment.RecurrenceEndDate == nil || b.Appointment.Frequency != engine.FrequencyWeekly {
		t.Error("expected anchor to keep its rule")
	}
}

func TestService_CreateAppointment_SkipsHolidaysAndBlockedDays(t *testing.T) {
	f := newFixture()
	f.open(at(1, 9), at(1, 17))
	f.exclusions.holidays = []engine.Date{*date(2024, time.July, 4)}
	f.exclusions.blocked = []engine.Weekday{engine.Wednesday}

	rule := engine.Rule{Frequency: engine.FrequencyDaily, EndDate: date(2024, time.July, 9)}
	b, err := f.svc.CreateAppointment(context.Background(), f.input(at(1, 10), rule))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Jul 2 Tue, 3 Wed blocked, 4 holiday, 5 Fri, 6-7 weekend, 8 Mon, 9 Tue.
	if b.CreatedCount != 4 {
		t.Errorf("expected 4 children, got %d", b.CreatedCount)
	}
	if b.Skipped[engine.ReasonHoliday] != 1 || b.Skipped[engine.ReasonBlockedWeekday] != 1 || b.Skipped[engine.ReasonWeekend] != 2 {
		t.Errorf("unexpected skip counts: %v", b.Skipped)
	}
}

func TestService_CreateAppointment_ChildrenSkipAvailabilityCheck(t *testing.T) {
	f := newFixture()
	// Only the anchor's day is covered.
	f.open(at(1, 9), at(1, 17))

	rule := engine.Rule{Frequency: engine.FrequencyWeekly, EndDate: date(2024, time.July, 15)}
	b, err := f.svc.CreateAppointment(context.Background(), f.input(at(1, 10), rule))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.CreatedCount != 2 {
		t.Errorf("expected 2 children without coverage, got %d", b.CreatedCount)
	}
}

func TestService_CreateAppointment_CancelledChildCountsAsDuplicate(t *testing.T) {
	f := newFixture()
	f.open(at(1, 9), at(1, 17))
	f.appts.insert(&Appointment{
		OrganizationID: f.org, ProviderID: f.provider.ID, PatientID: f.patient.ID, Title: "Follow-up",
		StartTime: at(8, 10), EndTime: at(8, 10).Add(30 * time.Minute), Status: StatusCancelled,
	})

	rule := engine.Rule{Frequency: engine.FrequencyWeekly, EndDate: date(2024, time.July, 22)}
	b, err := f.svc.CreateAppointment(context.Background(), f.input(at(1, 10), rule))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.CreatedCount != 2 {
		t.Errorf("expected 2 children, got %d", b.CreatedCount)
	}
	if b.Skipped[engine.ReasonDuplicate] != 1 {
		t.Errorf("expected 1 duplicate, got %d", b.Skipped[engine.ReasonDuplicate])
	}
}

func TestService_CreateAppointment_ChildCollisionSkipped(t *testing.T) {
	f := newFixture()
	f.open(at(1, 9), at(1, 17))
	other := uuid.New()
	f.appts.insert(&Appointment{
		OrganizationID: f.org, ProviderID: f.provider.ID, PatientID: other, Title: "Intake",
		StartTime: at(8, 10), EndTime: at(8, 10).Add(30 * time.Minute), Status: StatusScheduled,
	})

	rule := engine.Rule{Frequency: engine.FrequencyWeekly, EndDate: date(2024, time.July, 15)}
	b, err := f.svc.CreateAppointment(context.Background(), f.input(at(1, 10), rule))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.CreatedCount != 1 || b.Skipped[engine.ReasonDuplicate] != 1 {
		t.Errorf("expected 1 created and 1 duplicate, got %d and %v", b.CreatedCount, b.Skipped)
	}
}

func TestService_CreateAppointment_AnchorWindowTaken(t *testing.T) {
	f := newFixture()
	f.open(at(1, 9), at(1, 17))
	if _, err := f.svc.CreateAppointment(context.Background(), f.input(at(1, 10), engine.Rule{})); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	in := f.input(at(1, 10), engine.Rule{})
	in.Title = "Other"
	_, err := f.svc.CreateAppointment(context.Background(), in)
	if !errors.Is(err, ErrWindowTaken) {
		t.Fatalf("expected ErrWindowTaken, got %v", err)
	}
}

func TestService_CreateAppointment_InvalidRecurrence(t *testing.T) {
	f := newFixture()
	f.open(at(1, 9), at(1, 17))

	tests := []struct {
		name  string
		rule  engine.Rule
		field string
	}{
		{"missing end date", engine.Rule{Frequency: engine.FrequencyWeekly}, "recurrence.end_date"},
		{"end before anchor", engine.Rule{Frequency: engine.FrequencyDaily, EndDate: date(2024, time.June, 30)}, "recurrence.end_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateAppointment(context.Background(), f.input(at(1, 10), tt.rule))
			var ir *engine.InvalidRecurrenceError
			if !errors.As(err, &ir) {
				t.Fatalf("expected InvalidRecurrenceError, got %v", err)
			}
			if ir.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, ir.Field)
			}
		})
	}
	if len(f.appts.appts) != 0 || f.locker.calls != 0 {
		t.Error("expected rejection before the lock and before persisting")
	}
}

func TestService_CreateAppointment_Resolution(t *testing.T) {
	f := newFixture()
	f.open(at(1, 9), at(1, 17))

	in := f.input(at(1, 10), engine.Rule{})
	in.PatientID = uuid.New()
	_, err := f.svc.CreateAppointment(context.Background(), in)
	var re *ResolutionError
	if !errors.As(err, &re) || re.Field != "patient_id" {
		t.Fatalf("expected patient ResolutionError, got %v", err)
	}

	in = f.input(at(1, 10), engine.Rule{})
	in.Scope = Scope{OrganizationID: uuid.New()}
	_, err = f.svc.CreateAppointment(context.Background(), in)
	if !errors.As(err, &re) || re.Kind != "provider" || re.Field != "provider_id" {
		t.Fatalf("expected provider ResolutionError for foreign scope, got %v", err)
	}
}

func TestService_CreateAppointment_PatientFromOtherOrganization(t *testing.T) {
	f := newFixture()
	f.open(at(1, 9), at(1, 17))
	dir := f.svc.directory.(*mockDirectory)
	stranger := Participant{ID: uuid.New(), Name: "Sam", OrganizationID: uuid.New()}
	dir.patients[stranger.ID] = stranger

	in := f.input(at(1, 10), engine.Rule{})
	in.PatientID = stranger.ID
	_, err := f.svc.CreateAppointment(context.Background(), in)
	var re *ResolutionError
	if !errors.As(err, &re) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
}

func TestService_CreateAppointment_ClinicTimeZone(t *testing.T) {
	f := newFixture()
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	f.exclusions.loc = ny
	// Friday 21:00 in New York is Saturday 01:00 UTC.
	start := time.Date(2024, time.July, 5, 21, 0, 0, 0, ny)
	f.open(start.Add(-time.Hour), start.Add(2*time.Hour))

	rule := engine.Rule{Frequency: engine.FrequencyWeekly, EndDate: date(2024, time.July, 12)}
	b, err := f.svc.CreateAppointment(context.Background(), f.input(start.UTC(), rule))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.CreatedCount != 1 {
		t.Fatalf("expected the Friday child to be kept, got %d (skipped %v)", b.CreatedCount, b.Skipped)
	}
	if got := b.Children[0].StartTime.In(ny); got.Day() != 12 || got.Hour() != 21 {
		t.Errorf("expected Jul 12 21:00 local, got %s", got)
	}
}

func TestService_CancelAppointment(t *testing.T) {
	f := newFixture()
	f.open(at(1, 9), at(1, 17))
	b, _ := f.svc.CreateAppointment(context.Background(), f.input(at(1, 10), engine.Rule{}))

	a, err := f.svc.CancelAppointment(context.Background(), Scope{}, b.Appointment.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %q", a.Status)
	}
	if _, err := f.svc.CancelAppointment(context.Background(), Scope{}, b.Appointment.ID); !errors.Is(err, ErrAlreadyCancelled) {
		t.Errorf("expected ErrAlreadyCancelled, got %v", err)
	}

	// The freed window can be booked again.
	if _, err := f.svc.CreateAppointment(context.Background(), f.input(at(1, 10), engine.Rule{})); err != nil {
		t.Errorf("expected rebooking to succeed, got %v", err)
	}
}

func TestService_GetAppointment_OutOfScope(t *testing.T) {
	f := newFixture()
	f.open(at(1, 9), at(1, 17))
	b, _ := f.svc.CreateAppointment(context.Background(), f.input(at(1, 10), engine.Rule{}))

	if _, err := f.svc.GetAppointment(context.Background(), Scope{OrganizationID: f.org}, b.Appointment.ID); err != nil {
		t.Errorf("expected own organization to see it, got %v", err)
	}
	if _, err := f.svc.GetAppointment(context.Background(), Scope{OrganizationID: uuid.New()}, b.Appointment.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_ListAppointments_ScopeOverridesFilter(t *testing.T) {
	f := newFixture()
	f.open(at(1, 9), at(1, 17))
	f.svc.CreateAppointment(context.Background(), f.input(at(1, 10), engine.Rule{}))

	items, total, err := f.svc.ListAppointments(context.Background(), Scope{OrganizationID: uuid.New()}, AppointmentFilter{OrganizationID: f.org}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 0 || len(items) != 0 {
		t.Errorf("expected scope to hide other organizations, got %d", total)
	}
}

// -- Availability Tests --

func TestService_CreateAvailability_DailySkipsWeekends(t *testing.T) {
	f := newFixture()
	in := AvailabilityInput{
		ProviderID: f.provider.ID,
		Start:      at(1, 9),
		End:        at(1, 17),
		Rule:       engine.Rule{Frequency: engine.FrequencyDaily, EndDate: date(2024, time.July, 14)},
	}
	res, err := f.svc.CreateAvailability(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Jul 2-5 and 8-12.
	if res.CreatedCount != 9 {
		t.Errorf("expected 9 children, got %d", res.CreatedCount)
	}
	if res.Skipped[engine.ReasonWeekend] != 4 {
		t.Errorf("expected 4 weekend skips, got %d", res.Skipped[engine.ReasonWeekend])
	}
	if len(f.avail.blocks) != 10 {
		t.Errorf("expected 10 stored entries, got %d", len(f.avail.blocks))
	}
}

func TestService_CreateAvailability_BlockedCopiesMetadata(t *testing.T) {
	f := newFixture()
	in := AvailabilityInput{
		ProviderID: f.provider.ID,
		Start:      at(1, 12),
		End:        at(1, 13),
		IsBlocked:  true,
		BlockType:  "meeting",
		Rule:       engine.Rule{Frequency: engine.FrequencyWeekly, EndDate: date(2024, time.July, 8)},
	}
	res, err := f.svc.CreateAvailability(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CreatedCount != 1 {
		t.Fatalf("expected 1 child, got %d", res.CreatedCount)
	}
	c := res.Children[0]
	if !c.IsBlocked || c.BlockType == nil || *c.BlockType != "meeting" {
		t.Errorf("expected child to copy blocked metadata, got %+v", c)
	}
}

func TestService_CreateAvailability_OverlapAllowed(t *testing.T) {
	f := newFixture()
	f.open(at(1, 9), at(1, 17))
	_, err := f.svc.CreateAvailability(context.Background(), AvailabilityInput{
		ProviderID: f.provider.ID, Start: at(1, 12), End: at(1, 13), IsBlocked: true,
	})
	if err != nil {
		t.Fatalf("expected overlapping blocked entry to be accepted, got %v", err)
	}
}

func TestService_DeleteAvailability(t *testing.T) {
	f := newFixture()
	res, _ := f.svc.CreateAvailability(context.Background(), AvailabilityInput{
		ProviderID: f.provider.ID, Start: at(1, 9), End: at(1, 17),
	})
	if err := f.svc.DeleteAvailability(context.Background(), Scope{OrganizationID: uuid.New()}, res.Availability.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound out of scope, got %v", err)
	}
	if err := f.svc.DeleteAvailability(context.Background(), Scope{}, res.Availability.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.avail.blocks) != 0 {
		t.Error("expected entry deleted")
	}
}

// -- Discovery Tests --

func TestService_FindSlots(t *testing.T) {
	f := newFixture()
	// Monday 09:30.
	f.svc.WithClock(func() time.Time { return at(1, 9).Add(30 * time.Minute) })
	f.block(at(1, 12), at(1, 13))
	f.appts.insert(&Appointment{ProviderID: f.provider.ID, StartTime: at(1, 10), EndTime: at(1, 10).Add(30 * time.Minute), Status: StatusScheduled})

	slots, err := f.svc.FindSlots(context.Background(), Scope{}, f.provider.ID, 3, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []time.Time{at(1, 11), at(1, 13), at(1, 14)}
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %d", len(want), len(slots))
	}
	for i, s := range slots {
		if !s.Start.Equal(want[i]) {
			t.Errorf("slot %d: expected %s, got %s", i, want[i], s.Start)
		}
	}
}

func TestService_FindSlots_Invalid(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.FindSlots(context.Background(), Scope{}, f.provider.ID, 0, 5); !errors.Is(err, ErrInvalidSlotSearch) {
		t.Errorf("expected ErrInvalidSlotSearch, got %v", err)
	}
	_, err := f.svc.FindSlots(context.Background(), Scope{}, uuid.New(), 1, 1)
	var re *ResolutionError
	if !errors.As(err, &re) || re.Field != "" {
		t.Errorf("expected path ResolutionError, got %v", err)
	}
}

func TestService_Conflicts(t *testing.T) {
	f := newFixture()
	f.open(at(1, 9), at(1, 17))
	f.block(at(1, 12), at(1, 13))

	tests := []struct {
		name     string
		window   engine.Interval
		coverage bool
		blocking bool
	}{
		{"open", engine.Interval{Start: at(1, 10), End: at(1, 11)}, true, false},
		{"blocked", engine.Interval{Start: at(1, 12), End: at(1, 14)}, true, true},
		{"uncovered", engine.Interval{Start: at(2, 10), End: at(2, 11)}, false, false},
		{"touching block end", engine.Interval{Start: at(1, 13), End: at(1, 14)}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep, err := f.svc.Conflicts(context.Background(), Scope{}, f.provider.ID, tt.window)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rep.HasCoverage != tt.coverage || rep.HasBlockingConflict != tt.blocking {
				t.Errorf("got %+v", rep)
			}
		})
	}
}

// -- Reminder Source Tests --

func TestService_DueReminders(t *testing.T) {
	f := newFixture()
	f.open(at(1, 9), at(1, 17))
	b, _ := f.svc.CreateAppointment(context.Background(), f.input(at(1, 10), engine.Rule{}))
	// An appointment for a patient the directory no longer knows is skipped.
	f.appts.insert(&Appointment{ProviderID: f.provider.ID, PatientID: uuid.New(), StartTime: at(1, 11), EndTime: at(1, 12), Status: StatusScheduled})

	notices, err := f.svc.DueReminders(context.Background(), at(1, 0), at(2, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notices) != 1 {
		t.Fatalf("expected 1 notice, got %d", len(notices))
	}
	n := notices[0]
	if n.AppointmentID != b.Appointment.ID || n.PatientEmail != "ana@example.com" || n.ProviderName != "Dr. Grey" {
		t.Errorf("unexpected notice %+v", n)
	}

	if err := f.svc.MarkReminderSent(context.Background(), b.Appointment.ID, at(1, 7)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	notices, _ = f.svc.DueReminders(context.Background(), at(1, 0), at(2, 0))
	if len(notices) != 0 {
		t.Errorf("expected marked appointment to drop out, got %d", len(notices))
	}
}
