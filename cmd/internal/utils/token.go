package utils

import (
	"errors"

	"github.com/labstack/echo/v4"
)

// TokenDataKey is where the authentication middleware stores the caller.
const TokenDataKey = "token_data"

var ErrNoTokenData = errors.New("request carries no token data")

// TokenData is the authenticated caller of a request.
type TokenData struct {
	Sub   string
	Email string
}

// ParseTokenDataCtx returns the caller placed on the context by the
// authentication middleware.
func ParseTokenDataCtx(c echo.Context) (*TokenData, error) {
	data, ok := c.Get(TokenDataKey).(*TokenData)
	if !ok || data == nil || data.Sub == "" {
		return nil, ErrNoTokenData
	}
	return data, nil
}

// OptionalSub returns the caller's subject, or "" for anonymous requests.
func OptionalSub(c echo.Context) string {
	data, err := ParseTokenDataCtx(c)
	if err != nil {
		return ""
	}
	return data.Sub
}
