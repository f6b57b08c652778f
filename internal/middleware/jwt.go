package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// JWTAuth returns an Echo middleware that validates an HS256 Bearer token
// and stores its "sub" and "role" claims in the context under "user_id"
// and "role".  Tokens are issued out of band; this service only verifies.
func JWTAuth(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"status": "fail", "error": "unauthorized", "message": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims := jwt.MapClaims{}
			tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				return key, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"status": "fail", "error": "unauthorized", "message": "invalid token"})
			}

			if sub, err := claims.GetSubject(); err == nil && sub != "" {
				c.Set("user_id", sub)
			}
			if role, ok := claims["role"].(string); ok {
				c.Set("role", role)
			}
			return next(c)
		}
	}
}

// AdminGuard protects operator routes such as the global reset.  With an
// empty secret the guard is disabled and every request passes.
func AdminGuard(secret string) echo.MiddlewareFunc {
	if secret == "" {
		return passThrough
	}
	auth := JWTAuth(secret)
	role := RequireRole("ADMIN")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return auth(role(next))
	}
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }
