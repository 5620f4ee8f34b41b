package routes

import (
	"net/http"
	"strings"
	"time"

	"medibook/cmd/internal/auth"
	"medibook/cmd/internal/utils"
	"medibook/cmd/internal/utils/apierror"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

type TokenParser interface {
	Parse(raw string) (*auth.Claims, error)
}

func bearerToken(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// RequireAuth rejects requests without a valid session token and stores the
// caller for ParseTokenDataCtx.
func RequireAuth(tokens TokenParser) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearerToken(c)
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, apierror.InvalidAuthTokenError)
			}
			claims, err := tokens.Parse(raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, apierror.InvalidAuthTokenError)
			}
			c.Set(utils.TokenDataKey, &utils.TokenData{Sub: claims.Subject, Email: claims.Email})
			return next(c)
		}
	}
}

// OptionalAuth identifies the caller when a valid token is sent. A missing
// or stale token leaves the request anonymous.
func OptionalAuth(tokens TokenParser) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if raw := bearerToken(c); raw != "" {
				if claims, err := tokens.Parse(raw); err == nil {
					c.Set(utils.TokenDataKey, &utils.TokenData{Sub: claims.Subject, Email: claims.Email})
				}
			}
			return next(c)
		}
	}
}

// RateLimit throttles per client IP. A non-positive rps disables it.
func RateLimit(rps float64, burst int) echo.MiddlewareFunc {
	if rps <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if burst < 1 {
		burst = 1
	}

	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(rps),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, apierror.AccessDeniedError)
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return c.JSON(http.StatusTooManyRequests, apierror.TooManyRequestsError)
		},
	})
}
