package identity

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicsched/scheduler/internal/platform/auth"
	"github.com/clinicsched/scheduler/internal/platform/validation"
	"github.com/clinicsched/scheduler/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleProvider))
	read.GET("/providers", h.ListProviders)
	read.GET("/providers/:id", h.GetProvider)
	read.GET("/patients/:id", h.GetPatient)

	write := api.Group("", auth.RequireRole(auth.RoleStaff))
	write.POST("/providers", h.CreateProvider)
	write.POST("/patients", h.CreatePatient)
}

// -- Provider --

func (h *Handler) CreateProvider(c echo.Context) error {
	var req ProviderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return validation.HTTPError(err)
	}
	ctx := c.Request().Context()
	p, err := h.svc.CreateProvider(ctx, callerOrg(c), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetProvider(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetProvider(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if !auth.CanAccessOrganization(c, p.OrganizationID) {
		return echo.NewHTTPError(http.StatusNotFound, "provider not found")
	}
	return c.JSON(http.StatusOK, p)
}

// ListProviders lists the caller's organization; admins may pass
// organization_id or see every provider.
func (h *Handler) ListProviders(c echo.Context) error {
	ctx := c.Request().Context()
	orgID := callerOrg(c)
	if v := c.QueryParam("organization_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return validation.HTTPError(validation.Field("organization_id", "must be a valid UUID"))
		}
		if !auth.CanAccessOrganization(c, id) {
			return echo.NewHTTPError(http.StatusForbidden, "organization not accessible")
		}
		orgID = id
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListProviders(ctx, orgID, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

// -- Patient --

func (h *Handler) CreatePatient(c echo.Context) error {
	var req PatientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return validation.HTTPError(err)
	}
	ctx := c.Request().Context()
	p, err := h.svc.CreatePatient(ctx, callerOrg(c), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if p.OrganizationID != nil && !auth.CanAccessOrganization(c, *p.OrganizationID) {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return c.JSON(http.StatusOK, p)
}

// callerOrg is the organization the caller is bound to. Admins are unbound.
func callerOrg(c echo.Context) uuid.UUID {
	ctx := c.Request().Context()
	if auth.HasRole(auth.RolesFromContext(ctx)) {
		return uuid.Nil
	}
	return auth.OrganizationFromContext(ctx)
}

func httpError(err error) error {
	var fe validation.FieldErrors
	switch {
	case errors.As(err, &fe):
		return validation.HTTPError(fe)
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}
