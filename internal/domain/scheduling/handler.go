package scheduling

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicsched/scheduler/internal/platform/auth"
	"github.com/clinicsched/scheduler/internal/platform/notification"
	engine "github.com/clinicsched/scheduler/internal/platform/scheduling"
	"github.com/clinicsched/scheduler/internal/platform/validation"
	"github.com/clinicsched/scheduler/pkg/pagination"
)

// Confirmer sends the booking confirmation.
type Confirmer interface {
	Confirm(ctx context.Context, notice notification.AppointmentNotice) error
}

// SlotDefaults apply when a slot search omits max_results or days.
type SlotDefaults struct {
	MaxResults int
	Days       int
}

const defaultFeedDays = 30

type Handler struct {
	svc       *Service
	confirmer Confirmer
	slots     SlotDefaults
	logger    zerolog.Logger
}

func NewHandler(svc *Service, confirmer Confirmer, slots SlotDefaults, logger zerolog.Logger) *Handler {
	if slots.MaxResults <= 0 {
		slots.MaxResults = 5
	}
	if slots.Days <= 0 {
		slots.Days = 14
	}
	return &Handler{svc: svc, confirmer: confirmer, slots: slots, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleProvider))
	staff.POST("/appointments", h.CreateAppointment)
	staff.GET("/appointments", h.ListAppointments)
	staff.GET("/appointments/:id", h.GetAppointment)
	staff.POST("/appointments/:id/cancel", h.CancelAppointment)

	staff.POST("/availability", h.CreateAvailability)
	staff.GET("/availability", h.ListAvailability)
	staff.DELETE("/availability/:id", h.DeleteAvailability)

	staff.GET("/providers/:id/conflicts", h.Conflicts)
	staff.GET("/providers/:id/calendar.ics", h.CalendarFeed)

	// Patients may look for open slots, never at the calendar itself.
	lookup := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleProvider, auth.RolePatient))
	lookup.GET("/providers/:id/slots", h.FindSlots)
}

// scopeOf limits non-admin callers to the organization in their token.
func scopeOf(c echo.Context) Scope {
	ctx := c.Request().Context()
	if auth.HasRole(auth.RolesFromContext(ctx)) {
		return Scope{}
	}
	return Scope{OrganizationID: auth.OrganizationFromContext(ctx)}
}

// -- Appointment Handlers --

func (h *Handler) CreateAppointment(c echo.Context) error {
	var req CreateAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return validation.HTTPError(err)
	}

	ctx := c.Request().Context()
	booking, err := h.svc.CreateAppointment(ctx, AppointmentInput{
		Scope:      scopeOf(c),
		ProviderID: uuid.MustParse(req.ProviderID),
		PatientID:  uuid.MustParse(req.PatientID),
		Title:      req.Title,
		Notes:      req.Notes,
		Start:      req.StartTime,
		End:        req.EndTime,
		Rule:       req.Recurrence.Rule(),
		CreatedBy:  auth.UserIDFromContext(ctx),
	})
	if err != nil {
		return httpError(err)
	}

	h.confirm(ctx, booking)
	return c.JSON(http.StatusCreated, booking.AppointmentResult)
}

// confirm notifies the patient about the anchor. The booking stands whatever
// happens here.
func (h *Handler) confirm(ctx context.Context, b *Booking) {
	if h.confirmer == nil {
		return
	}
	notice := NewNotice(b.Appointment, b.Provider, b.Patient)
	if err := h.confirmer.Confirm(ctx, notice); err != nil {
		h.logger.Warn().Err(err).
			Str("appointment_id", b.Appointment.ID.String()).
			Msg("appointment confirmation failed")
	}
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), scopeOf(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f AppointmentFilter
	var err error
	if f.ProviderID, err = uuidQuery(c, "provider_id"); err != nil {
		return err
	}
	if f.PatientID, err = uuidQuery(c, "patient_id"); err != nil {
		return err
	}
	switch s := AppointmentStatus(c.QueryParam("status")); s {
	case "", StatusScheduled, StatusCancelled:
		f.Status = s
	default:
		return validation.HTTPError(validation.Field("status", "must be one of [scheduled cancelled]"))
	}
	if f.From, f.To, err = rangeQuery(c); err != nil {
		return err
	}

	items, total, err := h.svc.ListAppointments(c.Request().Context(), scopeOf(c), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.CancelAppointment(c.Request().Context(), scopeOf(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

// -- Availability Handlers --

func (h *Handler) CreateAvailability(c echo.Context) error {
	var req CreateAvailabilityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return validation.HTTPError(err)
	}

	res, err := h.svc.CreateAvailability(c.Request().Context(), AvailabilityInput{
		Scope:      scopeOf(c),
		ProviderID: uuid.MustParse(req.ProviderID),
		Start:      req.StartTime,
		End:        req.EndTime,
		IsBlocked:  req.IsBlocked,
		BlockType:  req.BlockType,
		Notes:      req.Notes,
		Rule:       req.Recurrence.Rule(),
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListAvailability(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f AvailabilityFilter
	var err error
	if f.ProviderID, err = uuidQuery(c, "provider_id"); err != nil {
		return err
	}
	f.BlockedOnly = c.QueryParam("blocked") == "true"
	if f.From, f.To, err = rangeQuery(c); err != nil {
		return err
	}

	items, total, err := h.svc.ListAvailability(c.Request().Context(), scopeOf(c), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) DeleteAvailability(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteAvailability(c.Request().Context(), scopeOf(c), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Provider calendar Handlers --

func (h *Handler) FindSlots(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	maxResults, err := intQuery(c, "max_results", h.slots.MaxResults)
	if err != nil {
		return err
	}
	days, err := intQuery(c, "days", h.slots.Days)
	if err != nil {
		return err
	}

	slots, err := h.svc.FindSlots(c.Request().Context(), scopeOf(c), id, maxResults, days)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"slots": slots})
}

func (h *Handler) Conflicts(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	start, err := timeQuery(c, "start")
	if err != nil {
		return err
	}
	end, err := timeQuery(c, "end")
	if err != nil {
		return err
	}
	if start == nil || end == nil {
		return validation.HTTPError(validation.FieldErrors{"start": "required", "end": "required"})
	}

	rep, err := h.svc.Conflicts(c.Request().Context(), scopeOf(c), id, engine.Interval{Start: *start, End: *end})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) CalendarFeed(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	from, to, err := rangeQuery(c)
	if err != nil {
		return err
	}
	if from == nil {
		now := time.Now().UTC()
		from = &now
	}
	if to == nil {
		end := from.AddDate(0, 0, defaultFeedDays)
		to = &end
	}

	feed, err := h.svc.CalendarFeed(c.Request().Context(), scopeOf(c), id, engine.Interval{Start: *from, End: *to})
	if err != nil {
		return httpError(err)
	}
	return c.Blob(http.StatusOK, "text/calendar; charset=utf-8", []byte(feed))
}

// -- Query helpers --

func uuidQuery(c echo.Context, name string) (uuid.UUID, error) {
	v := c.QueryParam(name)
	if v == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, validation.HTTPError(validation.Field(name, "must be a valid UUID"))
	}
	return id, nil
}

func timeQuery(c echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, validation.HTTPError(validation.Field(name, "must be an RFC 3339 timestamp"))
	}
	return &t, nil
}

func rangeQuery(c echo.Context) (from, to *time.Time, err error) {
	if from, err = timeQuery(c, "from"); err != nil {
		return nil, nil, err
	}
	if to, err = timeQuery(c, "to"); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func intQuery(c echo.Context, name string, def int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, validation.HTTPError(validation.Field(name, "must be a positive integer"))
	}
	return n, nil
}

// httpError maps service errors to HTTP responses.
func httpError(err error) error {
	var (
		fe         validation.FieldErrors
		recurrence *engine.InvalidRecurrenceError
		resolution *ResolutionError
		noCoverage *engine.NoCoverageError
		blocked    *engine.BlockedTimeError
	)
	switch {
	case errors.As(err, &fe):
		return validation.HTTPError(fe)
	case errors.As(err, &recurrence):
		return validation.HTTPError(validation.Field(recurrence.Field, recurrence.Reason))
	case errors.As(err, &resolution):
		if resolution.Field == "" {
			return echo.NewHTTPError(http.StatusNotFound, resolution.Error())
		}
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]interface{}{
			"message": resolution.Error(),
			"fields":  validation.Field(resolution.Field, resolution.Error()),
		})
	case errors.As(err, &noCoverage):
		return echo.NewHTTPError(http.StatusConflict, noCoverage.Error())
	case errors.As(err, &blocked):
		return echo.NewHTTPError(http.StatusConflict, blocked.Error())
	case errors.Is(err, ErrWindowTaken), errors.Is(err, ErrAlreadyCancelled):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidSlotSearch):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}
