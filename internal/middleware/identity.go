package middleware

import "github.com/labstack/echo/v4"

// callerID returns the authenticated subject stored by JWTAuth, or
// "anon" for unauthenticated requests.
func callerID(c echo.Context) string {
	if s, ok := c.Get("user_id").(string); ok && s != "" {
		return s
	}
	return "anon"
}
