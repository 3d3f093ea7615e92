package apiserver

import (
	"bytes"
	"io"
	"net/http"

	"imagegen-mcp/internal/config"
	"imagegen-mcp/internal/errors"
	"imagegen-mcp/internal/metrics"
	"imagegen-mcp/internal/middleware"
	"imagegen-mcp/internal/tools"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

const healthPath = "/healthz"

// CallResponse 工具调用的 HTTP 响应
type CallResponse struct {
	Text    string `json:"text"`
	IsError bool   `json:"isError"`
}

// RegisterRoutes 注册 Echo 路由
// limiter 为 nil 时不限流
func RegisterRoutes(e *echo.Echo, cfg *config.Config, registry *tools.Registry, collector *metrics.Collector, limiter *middleware.ToolLimiter) {
	// 设置自定义错误处理器
	e.HTTPErrorHandler = middleware.ErrorHandler()
	e.JSONSerializer = sonicSerializer{}

	// 添加中间件
	e.Use(middleware.RequestLogger(cfg))
	e.Use(middleware.BearerAuth(cfg, healthPath))

	e.GET(healthPath, func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	// 指标
	e.GET("/metrics", echo.WrapHandler(collector.Handler()))
	// 工具列表
	e.GET("/v1/tools", createListToolsHandler(registry))
	// 调用工具，请求体即参数对象；按调用方和工具限流
	e.POST("/v1/tools/:name", createCallToolHandler(registry), limiter.Middleware(collector.RateLimited))
}

// createListToolsHandler 创建工具列表处理器
func createListToolsHandler(registry *tools.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"data": registry.Tools()})
	}
}

// createCallToolHandler 创建工具调用处理器
// 工具自身的失败放在 isError 中返回 200，只有未知工具和请求体错误走 HTTP 错误
func createCallToolHandler(registry *tools.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		name := c.Param("name")
		if _, ok := registry.Lookup(name); !ok {
			return errors.NewNotFoundError("unknown tool: " + name)
		}

		// 不走 c.Bind，避免路径参数混进工具参数；空请求体等同于 {}
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return errors.NewBadRequestError("读取请求体失败", err)
		}
		args := map[string]any{}
		if len(bytes.TrimSpace(body)) > 0 {
			if err := sonic.Unmarshal(body, &args); err != nil {
				return errors.NewBadRequestError("无效的请求数据", err)
			}
		}

		res := registry.Dispatch(c.Request().Context(), name, args)
		middleware.SetToolOutcome(c, middleware.ToolOutcome{IsError: res.IsError, Images: res.Images})
		return c.JSON(http.StatusOK, CallResponse{Text: res.Text, IsError: res.IsError})
	}
}
