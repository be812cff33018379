package organization

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
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/organizations", h.CreateOrganization)
	admin.GET("/organizations", h.ListOrganizations)

	staff := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleProvider))
	staff.GET("/organizations/:id", h.GetOrganization)
	staff.PUT("/organizations/:id/blocked-days", h.SetBlockedDays)
}

func (h *Handler) CreateOrganization(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return validation.HTTPError(err)
	}
	o, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) GetOrganization(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if !auth.CanAccessOrganization(c, id) {
		return echo.NewHTTPError(http.StatusNotFound, ErrNotFound.Error())
	}
	o, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) ListOrganizations(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// SetBlockedDays is open to staff of the organization itself.
func (h *Handler) SetBlockedDays(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if !auth.CanAccessOrganization(c, id) {
		return echo.NewHTTPError(http.StatusNotFound, ErrNotFound.Error())
	}
	roles := auth.RolesFromContext(c.Request().Context())
	if !auth.HasRole(roles, auth.RoleStaff) {
		return echo.NewHTTPError(http.StatusForbidden, "required role: staff")
	}

	var req BlockedDaysRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return validation.HTTPError(err)
	}
	o, err := h.svc.SetBlockedDays(c.Request().Context(), id, req.BlockedDays)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, o)
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
