package middleware

import "github.com/labstack/echo/v4"

// userID names the caller for rate-limit keys.  Seat routes carry the user
// in the body, which middleware must not consume, so the lookup order is:
// verified JWT subject, X-User-ID header, userId query parameter, "anon".
func userID(c echo.Context) string {
	if s, ok := c.Get("user_id").(string); ok && s != "" {
		return s
	}
	if s := c.Request().Header.Get("X-User-ID"); s != "" {
		return s
	}
	if s := c.QueryParam("userId"); s != "" {
		return s
	}
	return "anon"
}
