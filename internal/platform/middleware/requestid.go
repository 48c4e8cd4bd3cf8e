package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// HeaderRequestID is the header carrying the request correlation id.
const HeaderRequestID = "X-Request-ID"

// RequestID returns middleware that attaches a correlation id to every
// request. An inbound X-Request-ID is honoured so callers can trace a
// request through their own systems; otherwise a fresh uuid is generated.
// The id is stored on the context under "request_id" for the logger and
// audit middleware and echoed on the response.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(HeaderRequestID)
			if rid == "" || len(rid) > 128 {
				rid = uuid.New().String()
			}

			c.Set("request_id", rid)
			c.Response().Header().Set(HeaderRequestID, rid)

			return next(c)
		}
	}
}
