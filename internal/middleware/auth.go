package middleware

import (
	"crypto/subtle"
	"strings"

	"imagegen-mcp/internal/config"
	"imagegen-mcp/internal/errors"
	"imagegen-mcp/internal/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// BearerAuth 校验 Authorization: Bearer <token>
// skip 中的路径不做校验（健康检查）
func BearerAuth(cfg *config.Config, skip ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, p := range skip {
				if c.Path() == p {
					return next(c)
				}
			}

			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				logger.Warn("无效的授权头",
					zap.String("method", c.Request().Method),
					zap.String("uri", c.Request().RequestURI),
					zap.String("remote_addr", c.RealIP()),
				)
				return errors.NewUnauthorizedError("invalid authorization header")
			}

			token := strings.TrimPrefix(auth, "Bearer ")
			expected := cfg.Security.BearerToken
			if expected == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
				logger.Warn("无效的Token",
					zap.String("method", c.Request().Method),
					zap.String("uri", c.Request().RequestURI),
					zap.String("remote_addr", c.RealIP()),
					zap.String("token", maskToken(token)),
				)
				return errors.NewUnauthorizedError("invalid token")
			}

			return next(c)
		}
	}
}

// maskToken 只保留前 4 位
func maskToken(token string) string {
	if len(token) <= 4 {
		return "***"
	}
	return token[:4] + "..."
}
