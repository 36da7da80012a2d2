package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/example/forum-auth/internal/tokenverify"
	res "github.com/example/forum-auth/pkg/http"
)

type AuthMiddleware struct {
	parser    tokenverify.Parser
	tokenType string
	now       func() time.Time
}

// NewAuthMiddleware accepts only tokens whose typ claim equals tokenType.
func NewAuthMiddleware(parser tokenverify.Parser, tokenType string) *AuthMiddleware {
	return &AuthMiddleware{parser: parser, tokenType: tokenType, now: time.Now}
}

func (m *AuthMiddleware) Handler(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authz := c.Request().Header.Get(echo.HeaderAuthorization)
		parts := strings.SplitN(authz, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return res.ErrorJSON(c, http.StatusUnauthorized, "unauthorized", "missing token", requestIDFromCtx(c), nil)
		}
		result, err := tokenverify.Verify(m.parser, strings.TrimSpace(parts[1]), m.tokenType, m.now)
		if err != nil {
			switch err {
			case tokenverify.ErrTokenExpired:
				return res.ErrorJSON(c, http.StatusUnauthorized, "unauthorized", "token expired", requestIDFromCtx(c), nil)
			case tokenverify.ErrSubjectMissing:
				return res.ErrorJSON(c, http.StatusUnauthorized, "unauthorized", "subject missing", requestIDFromCtx(c), nil)
			default:
				return res.ErrorJSON(c, http.StatusUnauthorized, "unauthorized", "invalid token", requestIDFromCtx(c), nil)
			}
		}
		c.Set("account_id", result.AccountID)
		c.Set("handle", result.Handle)
		return next(c)
	}
}

func requestIDFromCtx(c echo.Context) string {
	if reqID := c.Response().Header().Get(echo.HeaderXRequestID); reqID != "" {
		return reqID
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}
