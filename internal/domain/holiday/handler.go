package holiday

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicsched/scheduler/internal/platform/auth"
	"github.com/clinicsched/scheduler/internal/platform/validation"
)

type Handler struct {
	svc            *Service
	defaultCountry string
}

func NewHandler(svc *Service, defaultCountry string) *Handler {
	return &Handler{svc: svc, defaultCountry: strings.ToUpper(defaultCountry)}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleProvider))
	read.GET("/holidays", h.ListHolidays)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.PATCH("/holidays/:id", h.UpdateHoliday)
}

func (h *Handler) ListHolidays(c echo.Context) error {
	country := strings.ToUpper(c.QueryParam("country"))
	if country == "" {
		country = h.defaultCountry
	}
	if !h.svc.Supports(country) {
		return validation.HTTPError(validation.Field("country", "no holiday rules for "+country))
	}
	year := time.Now().Year()
	if v := c.QueryParam("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1900 || y > 2200 {
			return validation.HTTPError(validation.Field("year", "must be a year between 1900 and 2200"))
		}
		year = y
	}

	items, err := h.svc.List(c.Request().Context(), country, year)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"country":  country,
		"year":     year,
		"holidays": items,
	})
}

func (h *Handler) UpdateHoliday(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Recognized == nil && req.Suppressed == nil {
		return validation.HTTPError(validation.FieldErrors{
			"recognized": "recognized or suppressed is required",
			"suppressed": "recognized or suppressed is required",
		})
	}

	hol, err := h.svc.Update(c.Request().Context(), id, req)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
	return c.JSON(http.StatusOK, hol)
}
