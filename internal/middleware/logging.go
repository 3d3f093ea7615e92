package middleware

import (
	"time"

	"imagegen-mcp/internal/config"
	"imagegen-mcp/internal/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const toolOutcomeKey = "tool_outcome"

// ToolOutcome 一次工具调用的结果摘要，由处理器写入 echo.Context
type ToolOutcome struct {
	IsError bool
	Images  int
}

// SetToolOutcome 记录工具调用结果，RequestLogger 会把它写进访问日志
func SetToolOutcome(c echo.Context, o ToolOutcome) {
	c.Set(toolOutcomeKey, o)
}

// RequestLogger 访问日志
//
// 工具调用的 HTTP 状态总是 200，真正的成败在 ToolOutcome 里：
// 失败的工具调用记为 warn，成功的记录保存的图片数。
func RequestLogger(cfg *config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Logging.EnableRequestLog {
				return next(c)
			}

			start := time.Now()
			requestID := ensureRequestID(c)
			err := next(c)

			req, res := c.Request(), c.Response()
			fields := []zap.Field{
				zap.String("request_id", requestID),
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", res.Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("remote_addr", c.RealIP()),
			}
			if tool := c.Param("name"); tool != "" {
				fields = append(fields, zap.String("tool", tool))
			}

			outcome, isCall := c.Get(toolOutcomeKey).(ToolOutcome)
			if isCall {
				fields = append(fields,
					zap.Bool("tool_error", outcome.IsError),
					zap.Int("images", outcome.Images),
				)
			}

			switch {
			case err != nil:
				logger.Error("请求失败", append(fields, zap.Error(err))...)
			case res.Status >= 500:
				logger.Error("请求完成但服务器错误", fields...)
			case res.Status >= 400:
				logger.Warn("请求完成但客户端错误", fields...)
			case isCall && outcome.IsError:
				logger.Warn("工具调用失败", fields...)
			case isCall:
				logger.Info("工具调用完成", fields...)
			default:
				logger.Debug("请求完成", fields...)
			}
			return err
		}
	}
}

// ensureRequestID 沿用 RequestID 中间件或客户端给出的 ID，没有时生成一个
func ensureRequestID(c echo.Context) string {
	id := c.Response().Header().Get(echo.HeaderXRequestID)
	if id == "" {
		id = c.Request().Header.Get(echo.HeaderXRequestID)
	}
	if id == "" {
		id = "req_" + uuid.NewString()
	}
	c.Request().Header.Set(echo.HeaderXRequestID, id)
	c.Response().Header().Set(echo.HeaderXRequestID, id)
	return id
}
