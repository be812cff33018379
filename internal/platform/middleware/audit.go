package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicsched/scheduler/internal/platform/auth"
)

// AccessEntry records who touched which scheduling resource and with what
// outcome. PatientID is set when the request names a patient.
type AccessEntry struct {
	UserID         string
	UserRoles      []string
	OrganizationID string
	Resource       string
	ResourceID     string
	PatientID      string
	Action         string // read, create, update, delete
	IPAddress      string
	UserAgent      string
	Path           string
	Method         string
	Timestamp      time.Time
	RequestID      string
	StatusCode     int
}

// AccessRecorder persists access entries somewhere other than the log.
type AccessRecorder interface {
	RecordAccess(entry AccessEntry) error
}

// AccessRecorderFunc adapts a function to AccessRecorder.
type AccessRecorderFunc func(entry AccessEntry) error

func (f AccessRecorderFunc) RecordAccess(entry AccessEntry) error {
	return f(entry)
}

// Audit logs every request under /api/v1/ after the handler has run, so the
// entry carries the final status. Patient schedules are personal data and
// every read of them is traced.
func Audit(logger zerolog.Logger, recorders ...AccessRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !isAuditablePath(path) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}

			ctx := req.Context()
			entry := AccessEntry{
				Timestamp:  time.Now().UTC(),
				Path:       path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: status,
				UserID:     auth.UserIDFromContext(ctx),
				UserRoles:  auth.RolesFromContext(ctx),
				Action:     httpMethodToAction(req.Method),
			}
			if org := auth.OrganizationFromContext(ctx); org != uuid.Nil {
				entry.OrganizationID = org.String()
			}
			entry.RequestID, _ = c.Get("request_id").(string)
			entry.Resource, entry.ResourceID = splitResource(path)
			entry.PatientID = extractPatientID(c, entry.Resource, entry.ResourceID)

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record access entry")
				}
			}

			logger.Info().
				Str("type", "access_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("organization_id", entry.OrganizationID).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("resource_access")

			return err
		}
	}
}

func isAuditablePath(path string) bool {
	return strings.HasPrefix(path, "/api/v1/")
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// splitResource returns the collection and, when present, the id segment.
//
//	/api/v1/appointments          -> appointments, ""
//	/api/v1/appointments/<id>     -> appointments, <id>
//	/api/v1/providers/<id>/slots  -> providers, <id>
func splitResource(path string) (string, string) {
	segments := strings.Split(strings.TrimPrefix(path, "/api/v1/"), "/")
	resource := "unknown"
	if len(segments) > 0 && segments[0] != "" {
		resource = segments[0]
	}
	if len(segments) > 1 && isUUIDLike(segments[1]) {
		return resource, segments[1]
	}
	return resource, ""
}

func extractPatientID(c echo.Context, resource, id string) string {
	if resource == "patients" && id != "" {
		return id
	}
	if p := c.QueryParam("patient_id"); isUUIDLike(p) {
		return p
	}
	return ""
}

func isUUIDLike(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
