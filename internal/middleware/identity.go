package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// identityKey extracts a stable per-user identifier for rate-limit
// keys.  JWTAuth stores the subject claim under "user_id"; anonymous
// requests share the "guest" bucket and are distinguished by IP.
func identityKey(c echo.Context) string {
	if v := c.Get("user_id"); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
		if f, ok := v.(float64); ok {
			return strconv.FormatUint(uint64(f), 10)
		}
	}
	return "guest"
}
