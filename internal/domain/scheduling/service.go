package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicsched/scheduler/internal/platform/notification"
	engine "github.com/clinicsched/scheduler/internal/platform/scheduling"
	"github.com/clinicsched/scheduler/internal/platform/validation"
)

// Participant is a resolved provider or patient.
type Participant struct {
	ID             uuid.UUID
	Name           string
	Email          string
	Phone          string
	OrganizationID uuid.UUID
}

// Directory resolves provider and patient ids. found is false, with a nil
// error, for unknown ids.
type Directory interface {
	Provider(ctx context.Context, id uuid.UUID) (p Participant, found bool, err error)
	Patient(ctx context.Context, id uuid.UUID) (p Participant, found bool, err error)
}

// ExclusionSource supplies an organization's clinic time zone and the days
// its recurring series must skip.
type ExclusionSource interface {
	Location(ctx context.Context, orgID uuid.UUID) (*time.Location, error)
	ExclusionCalendar(ctx context.Context, orgID uuid.UUID, from, to engine.Date) (engine.ExclusionCalendar, error)
}

type Service struct {
	appointments AppointmentRepository
	availability AvailabilityRepository
	directory    Directory
	exclusions   ExclusionSource
	locker       ProviderLocker
	validator    *engine.Validator
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(appts AppointmentRepository, avail AvailabilityRepository, dir Directory, excl ExclusionSource, locker ProviderLocker, logger zerolog.Logger) *Service {
	s := &Service{
		appointments: appts,
		availability: avail,
		directory:    dir,
		exclusions:   excl,
		locker:       locker,
		logger:       logger,
		now:          time.Now,
	}
	s.validator = engine.NewValidator(availabilityLookup{avail})
	return s
}

// WithClock replaces the time source used by slot discovery.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// -- Engine adapters --

type availabilityLookup struct{ repo AvailabilityRepository }

func (l availabilityLookup) OverlappingAvailability(ctx context.Context, providerID uuid.UUID, window engine.Interval, blockedOnly bool) ([]engine.Block, error) {
	rows, err := l.repo.Overlapping(ctx, providerID, window, blockedOnly)
	if err != nil {
		return nil, err
	}
	out := make([]engine.Block, 0, len(rows))
	for _, b := range rows {
		out = append(out, engine.Block{Interval: b.Window(), Blocked: b.IsBlocked})
	}
	return out, nil
}

// -- Resolution --

// Scope limits a caller to one organization. The zero value allows all.
type Scope struct {
	OrganizationID uuid.UUID
}

func (sc Scope) allows(orgID uuid.UUID) bool {
	return sc.OrganizationID == uuid.Nil || sc.OrganizationID == orgID
}

func (s *Service) resolveProvider(ctx context.Context, sc Scope, id uuid.UUID, field string) (Participant, error) {
	p, found, err := s.directory.Provider(ctx, id)
	if err != nil {
		return Participant{}, fmt.Errorf("resolve provider %s: %w", id, err)
	}
	if !found || !sc.allows(p.OrganizationID) {
		return Participant{}, &ResolutionError{Kind: "provider", ID: id, Field: field}
	}
	return p, nil
}

func (s *Service) resolvePatient(ctx context.Context, orgID, id uuid.UUID, field string) (Participant, error) {
	p, found, err := s.directory.Patient(ctx, id)
	if err != nil {
		return Participant{}, fmt.Errorf("resolve patient %s: %w", id, err)
	}
	if !found || (p.OrganizationID != uuid.Nil && p.OrganizationID != orgID) {
		return Participant{}, &ResolutionError{Kind: "patient", ID: id, Field: field}
	}
	return p, nil
}

// anchorIn validates the window and rule in the clinic's zone, so weekdays and
// the end date are judged on local dates.
func (s *Service) anchorIn(ctx context.Context, orgID uuid.UUID, start, end time.Time, rule engine.Rule) (engine.Interval, *time.Location, error) {
	loc, err := s.exclusions.Location(ctx, orgID)
	if err != nil {
		return engine.Interval{}, nil, fmt.Errorf("load clinic time zone: %w", err)
	}
	anchor := engine.Interval{Start: start.In(loc), End: end.In(loc)}
	if err := anchor.Validate(); err != nil {
		return engine.Interval{}, nil, validation.Field("end_time", "must be after start_time")
	}
	if err := rule.Validate(anchor.Start); err != nil {
		return engine.Interval{}, nil, err
	}
	return anchor, loc, nil
}

func (s *Service) calendarFor(ctx context.Context, orgID uuid.UUID, anchor engine.Interval, rule engine.Rule, kind engine.SubjectKind) (engine.ExclusionCalendar, error) {
	if !rule.Recurs() {
		return engine.ExclusionCalendar{}, nil
	}
	from, to := rule.Horizon(anchor.Start, kind)
	cal, err := s.exclusions.ExclusionCalendar(ctx, orgID, from, to)
	if err != nil {
		return engine.ExclusionCalendar{}, fmt.Errorf("load exclusion calendar: %w", err)
	}
	return cal, nil
}

// -- Appointments --

type AppointmentInput struct {
	Scope      Scope
	ProviderID uuid.UUID
	PatientID  uuid.UUID
	Title      string
	Notes      string
	Start      time.Time
	End        time.Time
	Rule       engine.Rule
	CreatedBy  string
}

// Booking is a created appointment series with the parties it was booked for.
type Booking struct {
	AppointmentResult
	Provider Participant `json:"-"`
	Patient  Participant `json:"-"`
}

// CreateAppointment validates the window against the provider's availability,
// stores the anchor and expands its recurrence. Every rejection happens
// before the anchor is stored. Children are not checked against
// availability; they only pass the exclusion and duplicate gates.
func (s *Service) CreateAppointment(ctx context.Context, in AppointmentInput) (*Booking, error) {
	provider, err := s.resolveProvider(ctx, in.Scope, in.ProviderID, "provider_id")
	if err != nil {
		return nil, err
	}
	patient, err := s.resolvePatient(ctx, provider.OrganizationID, in.PatientID, "patient_id")
	if err != nil {
		return nil, err
	}
	anchor, _, err := s.anchorIn(ctx, provider.OrganizationID, in.Start, in.End, in.Rule)
	if err != nil {
		return nil, err
	}
	cal, err := s.calendarFor(ctx, provider.OrganizationID, anchor, in.Rule, engine.KindAppointment)
	if err != nil {
		return nil, err
	}

	appt := &Appointment{
		OrganizationID: provider.OrganizationID,
		ProviderID:     provider.ID,
		PatientID:      patient.ID,
		Title:          in.Title,
		Notes:          strPtr(in.Notes),
		StartTime:      anchor.Start,
		EndTime:        anchor.End,
		Status:         StatusScheduled,
		Frequency:      in.Rule.Frequency,
		CreatedBy:      strPtr(in.CreatedBy),
	}
	if in.Rule.Recurs() {
		appt.RecurrenceEndDate = in.Rule.EndDate
	} else {
		appt.Frequency = engine.FrequencyNone
	}

	var (
		children []*Appointment
		expanded engine.ExpansionResult
	)
	err = s.locker.WithProviderLock(ctx, provider.ID, func(ctx context.Context) error {
		children = nil
		err := s.validator.CheckAppointment(ctx, engine.Provider{ID: provider.ID, Name: provider.Name}, anchor)
		if err != nil {
			return err
		}
		if err := s.appointments.Create(ctx, appt); err != nil {
			return err
		}

		identity := appt.Identity()
		store := engine.SeriesStoreFuncs{
			ExistsFunc: func(ctx context.Context, c engine.Candidate) (bool, error) {
				return s.appointments.Exists(ctx, identity, c.Interval)
			},
			CreateFunc: func(ctx context.Context, c engine.Candidate) (bool, error) {
				child := &Appointment{
					OrganizationID: appt.OrganizationID,
					ProviderID:     appt.ProviderID,
					PatientID:      appt.PatientID,
					Title:          appt.Title,
					Notes:          appt.Notes,
					StartTime:      c.Start,
					EndTime:        c.End,
					Status:         StatusScheduled,
					Frequency:      engine.FrequencyNone,
					CreatedBy:      appt.CreatedBy,
				}
				ok, err := s.appointments.CreateIfAbsent(ctx, child)
				if ok {
					children = append(children, child)
				}
				return ok, err
			},
		}
		expanded, err = engine.Materialize(ctx, anchor, in.Rule, engine.KindAppointment, cal, store)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logExpansion(engine.KindAppointment, appt.ID, in.Rule, expanded)
	return &Booking{
		AppointmentResult: AppointmentResult{
			Appointment:  appt,
			Children:     nonNil(children),
			CreatedCount: len(children),
			Skipped:      expanded.Skipped,
		},
		Provider: provider,
		Patient:  patient,
	}, nil
}

func (s *Service) logExpansion(kind engine.SubjectKind, anchorID uuid.UUID, rule engine.Rule, res engine.ExpansionResult) {
	if !rule.Recurs() {
		return
	}
	evt := s.logger.Info().
		Str("kind", string(kind)).
		Str("anchor_id", anchorID.String()).
		Str("frequency", string(rule.Frequency)).
		Int("created", res.CreatedCount())
	for reason, n := range res.Skipped {
		evt = evt.Int("skipped_"+string(reason), n)
	}
	evt.Msg("recurrence expanded")
}

func (s *Service) GetAppointment(ctx context.Context, sc Scope, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sc.allows(a.OrganizationID) {
		return nil, ErrNotFound
	}
	return a, nil
}

func (s *Service) ListAppointments(ctx context.Context, sc Scope, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	if sc.OrganizationID != uuid.Nil {
		f.OrganizationID = sc.OrganizationID
	}
	return s.appointments.List(ctx, f, limit, offset)
}

// CancelAppointment frees the appointment's slot. The row stays so the same
// child is never generated again.
func (s *Service) CancelAppointment(ctx context.Context, sc Scope, id uuid.UUID) (*Appointment, error) {
	a, err := s.GetAppointment(ctx, sc, id)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	if err := s.appointments.UpdateStatus(ctx, id, StatusCancelled); err != nil {
		return nil, err
	}
	a.Status = StatusCancelled
	a.UpdatedAt = s.now().UTC()
	return a, nil
}

// -- Availability --

type AvailabilityInput struct {
	Scope      Scope
	ProviderID uuid.UUID
	Start      time.Time
	End        time.Time
	IsBlocked  bool
	BlockType  string
	Notes      string
	Rule       engine.Rule
}

// CreateAvailability stores an availability entry and expands its
// recurrence. Availability is not checked against other entries; overlaps
// are allowed.
func (s *Service) CreateAvailability(ctx context.Context, in AvailabilityInput) (*AvailabilityResult, error) {
	provider, err := s.resolveProvider(ctx, in.Scope, in.ProviderID, "provider_id")
	if err != nil {
		return nil, err
	}
	anchor, _, err := s.anchorIn(ctx, provider.OrganizationID, in.Start, in.End, in.Rule)
	if err != nil {
		return nil, err
	}
	cal, err := s.calendarFor(ctx, provider.OrganizationID, anchor, in.Rule, engine.KindAvailability)
	if err != nil {
		return nil, err
	}

	block := &AvailabilityBlock{
		OrganizationID: provider.OrganizationID,
		ProviderID:     provider.ID,
		StartTime:      anchor.Start,
		EndTime:        anchor.End,
		IsBlocked:      in.IsBlocked,
		BlockType:      strPtr(in.BlockType),
		Notes:          strPtr(in.Notes),
		Frequency:      in.Rule.Frequency,
	}
	if in.Rule.Recurs() {
		block.RecurrenceEndDate = in.Rule.EndDate
	} else {
		block.Frequency = engine.FrequencyNone
	}

	var (
		children []*AvailabilityBlock
		expanded engine.ExpansionResult
	)
	err = s.locker.WithProviderLock(ctx, provider.ID, func(ctx context.Context) error {
		children = nil
		if err := s.availability.Create(ctx, block); err != nil {
			return err
		}
		identity := block.Identity()
		store := engine.SeriesStoreFuncs{
			ExistsFunc: func(ctx context.Context, c engine.Candidate) (bool, error) {
				return s.availability.Exists(ctx, identity, c.Interval)
			},
			CreateFunc: func(ctx context.Context, c engine.Candidate) (bool, error) {
				child := &AvailabilityBlock{
					OrganizationID: block.OrganizationID,
					ProviderID:     block.ProviderID,
					StartTime:      c.Start,
					EndTime:        c.End,
					IsBlocked:      block.IsBlocked,
					BlockType:      block.BlockType,
					Notes:          block.Notes,
					Frequency:      engine.FrequencyNone,
				}
				ok, err := s.availability.CreateIfAbsent(ctx, child)
				if ok {
					children = append(children, child)
				}
				return ok, err
			},
		}
		var err error
		expanded, err = engine.Materialize(ctx, anchor, in.Rule, engine.KindAvailability, cal, store)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logExpansion(engine.KindAvailability, block.ID, in.Rule, expanded)
	return &AvailabilityResult{
		Availability: block,
		Children:     nonNil(children),
		CreatedCount: len(children),
		Skipped:      expanded.Skipped,
	}, nil
}

func (s *Service) ListAvailability(ctx context.Context, sc Scope, f AvailabilityFilter, limit, offset int) ([]*AvailabilityBlock, int, error) {
	if sc.OrganizationID != uuid.Nil {
		f.OrganizationID = sc.OrganizationID
	}
	return s.availability.List(ctx, f, limit, offset)
}

func (s *Service) DeleteAvailability(ctx context.Context, sc Scope, id uuid.UUID) error {
	b, err := s.availability.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !sc.allows(b.OrganizationID) {
		return ErrNotFound
	}
	return s.availability.Delete(ctx, id)
}

// -- Discovery --

// FindSlots returns up to maxResults free grid slots for the provider within
// the next days days, in clinic time.
func (s *Service) FindSlots(ctx context.Context, sc Scope, providerID uuid.UUID, maxResults, days int) ([]Slot, error) {
	if maxResults <= 0 || days <= 0 {
		return nil, ErrInvalidSlotSearch
	}
	provider, err := s.resolveProvider(ctx, sc, providerID, "")
	if err != nil {
		return nil, err
	}
	loc, err := s.exclusions.Location(ctx, provider.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("load clinic time zone: %w", err)
	}

	finder := engine.NewSlotFinder(availabilityLookup{s.availability}, s.appointments, loc).WithClock(s.now)
	found, err := finder.Find(ctx, provider.ID, maxResults, days)
	if err != nil {
		return nil, err
	}
	slots := make([]Slot, 0, len(found))
	for _, iv := range found {
		slots = append(slots, Slot{Start: iv.Start, End: iv.End})
	}
	return slots, nil
}

// Conflicts reports coverage and blocking for a window without booking it.
func (s *Service) Conflicts(ctx context.Context, sc Scope, providerID uuid.UUID, window engine.Interval) (engine.ConflictReport, error) {
	if err := window.Validate(); err != nil {
		return engine.ConflictReport{}, validation.Field("end", "must be after start")
	}
	provider, err := s.resolveProvider(ctx, sc, providerID, "")
	if err != nil {
		return engine.ConflictReport{}, err
	}
	return s.validator.Inspect(ctx, provider.ID, window)
}

// -- Reminders --

// DueReminders implements notification.ReminderSource.
func (s *Service) DueReminders(ctx context.Context, from, to time.Time) ([]notification.AppointmentNotice, error) {
	appts, err := s.appointments.DueReminders(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]notification.AppointmentNotice, 0, len(appts))
	for _, a := range appts {
		notice, err := s.notice(ctx, a)
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn().Str("appointment_id", a.ID.String()).Msg("reminder skipped: participant no longer exists")
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, notice)
	}
	return out, nil
}

func (s *Service) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.appointments.MarkReminderSent(ctx, id, at)
}

func (s *Service) notice(ctx context.Context, a *Appointment) (notification.AppointmentNotice, error) {
	provider, found, err := s.directory.Provider(ctx, a.ProviderID)
	if err != nil {
		return notification.AppointmentNotice{}, err
	}
	if !found {
		return notification.AppointmentNotice{}, ErrNotFound
	}
	patient, found, err := s.directory.Patient(ctx, a.PatientID)
	if err != nil {
		return notification.AppointmentNotice{}, err
	}
	if !found {
		return notification.AppointmentNotice{}, ErrNotFound
	}
	return NewNotice(a, provider, patient), nil
}

// NewNotice builds the notification view of an appointment.
func NewNotice(a *Appointment, provider, patient Participant) notification.AppointmentNotice {
	return notification.AppointmentNotice{
		AppointmentID: a.ID,
		PatientID:     patient.ID,
		PatientName:   patient.Name,
		PatientEmail:  patient.Email,
		PatientPhone:  patient.Phone,
		ProviderName:  provider.Name,
		Start:         a.StartTime,
		End:           a.EndTime,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
