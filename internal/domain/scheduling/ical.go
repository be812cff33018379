package scheduling

import (
	"context"
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	engine "github.com/clinicsched/scheduler/internal/platform/scheduling"
	"github.com/clinicsched/scheduler/internal/platform/validation"
)

const (
	calendarProdID = "-//clinicsched//scheduler//EN"
	// feedPageSize bounds one repository page while building a feed.
	feedPageSize = 500
	// MaxFeedRange is the widest window a calendar feed may cover.
	MaxFeedRange = 366 * 24 * time.Hour
)

// CalendarFeed renders the provider's appointments and blocked time inside
// window as an iCalendar document. Cancelled appointments are included with
// STATUS:CANCELLED so subscribed clients drop them.
func (s *Service) CalendarFeed(ctx context.Context, sc Scope, providerID uuid.UUID, window engine.Interval) (string, error) {
	if err := window.Validate(); err != nil {
		return "", validation.Field("to", "must be after from")
	}
	if window.Duration() > MaxFeedRange {
		return "", validation.Field("to", "range must not exceed 366 days")
	}
	provider, err := s.resolveProvider(ctx, sc, providerID, "")
	if err != nil {
		return "", err
	}

	from, to := window.Start, window.End
	appts, err := collectPages(func(offset int) ([]*Appointment, int, error) {
		return s.appointments.List(ctx, AppointmentFilter{ProviderID: provider.ID, From: &from, To: &to}, feedPageSize, offset)
	})
	if err != nil {
		return "", fmt.Errorf("list appointments for feed: %w", err)
	}
	blocks, err := collectPages(func(offset int) ([]*AvailabilityBlock, int, error) {
		return s.availability.List(ctx, AvailabilityFilter{ProviderID: provider.ID, BlockedOnly: true, From: &from, To: &to}, feedPageSize, offset)
	})
	if err != nil {
		return "", fmt.Errorf("list blocked time for feed: %w", err)
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(calendarProdID)
	cal.SetXWRCalName(provider.Name)

	stamp := s.now().UTC()
	for _, a := range appts {
		ev := cal.AddEvent(a.ID.String() + "@appointment")
		ev.SetDtStampTime(stamp)
		ev.SetCreatedTime(a.CreatedAt)
		ev.SetModifiedAt(a.UpdatedAt)
		ev.SetStartAt(a.StartTime)
		ev.SetEndAt(a.EndTime)
		ev.SetSummary(a.Title)
		if a.Notes != nil {
			ev.SetDescription(*a.Notes)
		}
		if a.Status == StatusCancelled {
			ev.SetStatus(ical.ObjectStatusCancelled)
		} else {
			ev.SetStatus(ical.ObjectStatusConfirmed)
		}
	}
	for _, b := range blocks {
		ev := cal.AddEvent(b.ID.String() + "@blocked")
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(b.StartTime)
		ev.SetEndAt(b.EndTime)
		ev.SetSummary("Unavailable")
		ev.SetStatus(ical.ObjectStatusConfirmed)
	}
	return cal.Serialize(), nil
}

func collectPages[T any](page func(offset int) ([]T, int, error)) ([]T, error) {
	var out []T
	for offset := 0; ; {
		items, total, err := page(offset)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
		offset += len(items)
		if len(items) == 0 || offset >= total {
			return out, nil
		}
	}
}
