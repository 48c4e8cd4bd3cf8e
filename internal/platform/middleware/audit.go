package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dr-abraham74/paracetamol-OD/internal/platform/auth"
)

// AuditEntry records who did what to which assessment session. Clinical
// decision support output influences treatment, so every API call is
// attributable.
type AuditEntry struct {
	Actor     string
	Roles     []string
	Action    string // read, create, submit, restart, delete
	SessionID string
	Method    string
	Path      string
	Status    int
	RemoteIP  string
	RequestID string
	Timestamp time.Time
}

// AuditRecorder persists audit entries. The middleware always emits a
// structured log line; a recorder is for an additional durable sink and
// lets tests capture entries.
type AuditRecorder interface {
	Record(entry AuditEntry) error
}

// AuditRecorderFunc adapts a function to the AuditRecorder interface.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) Record(entry AuditEntry) error {
	return f(entry)
}

// Audit returns middleware that writes one audit event per API call:
// authenticated actor and roles, the action taken, the assessment session
// touched, and the response status. Non-API paths pass through untouched.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path

			if !strings.HasPrefix(path, "/api/v1/") {
				return next(c)
			}

			// Run the handler first so the entry carries the real status.
			err := next(c)

			ctx := req.Context()
			entry := AuditEntry{
				Actor:     auth.UserIDFromContext(ctx),
				Roles:     auth.RolesFromContext(ctx),
				Action:    auditAction(req.Method, path),
				SessionID: sessionIDFromPath(path),
				Method:    req.Method,
				Path:      path,
				Status:    responseStatus(c, err),
				RemoteIP:  c.RealIP(),
				Timestamp: time.Now().UTC(),
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			if len(recorders) > 0 && recorders[0] != nil {
				if recErr := recorders[0].Record(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("actor", entry.Actor).
				Strs("roles", entry.Roles).
				Str("action", entry.Action).
				Str("session_id", entry.SessionID).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.RemoteIP).
				Int("status", entry.Status).
				Msg("api_access")

			return err
		}
	}
}

// auditAction names the clinical action a request performs. Submissions
// and restarts are distinguished from plain creation because they move an
// assessment between stages.
func auditAction(method, path string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "read"
	case http.MethodPost:
		switch {
		case strings.HasSuffix(path, "/intake"),
			strings.HasSuffix(path, "/admission-bloods"),
			strings.HasSuffix(path, "/reassessment-bloods"):
			return "submit"
		case strings.HasSuffix(path, "/restart"):
			return "restart"
		}
		return "create"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// sessionIDFromPath extracts the assessment session id from paths of the
// form /api/v1/assessments/<uuid>[/...]. Other paths yield "".
func sessionIDFromPath(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/v1/assessments/")
	if !ok {
		return ""
	}
	id := rest
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		id = rest[:i]
	}
	if _, err := uuid.Parse(id); err != nil {
		return ""
	}
	return id
}
