package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"imagegen-mcp/internal/config"
	"imagegen-mcp/internal/errors"
	"imagegen-mcp/internal/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newEcho(cfg *config.Config, mws ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler()
	e.Use(mws...)
	e.GET("/ok", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/fail", func(c echo.Context) error { return errors.NewInvalidInputError("prompt is required", nil) })
	return e
}

func get(e *echo.Echo, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	req.RemoteAddr = "10.0.0.1:5555"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestBearerAuth(t *testing.T) {
	cfg := config.Default()
	cfg.Security.BearerToken = "tok"
	e := newEcho(cfg, BearerAuth(cfg, "/ok"))

	assert.Equal(t, http.StatusOK, get(e, "/ok", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(e, "/fail", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(e, "/fail", "Basic tok").Code)
	assert.Equal(t, http.StatusUnauthorized, get(e, "/fail", "Bearer t").Code)
	assert.Equal(t, http.StatusBadRequest, get(e, "/fail", "Bearer tok").Code)
}

func TestBearerAuth_EmptyConfiguredTokenRejectsAll(t *testing.T) {
	cfg := config.Default()
	e := newEcho(cfg, BearerAuth(cfg))
	assert.Equal(t, http.StatusUnauthorized, get(e, "/ok", "Bearer ").Code)
}

func TestErrorHandler_AppError(t *testing.T) {
	e := newEcho(config.Default())
	rec := get(e, "/fail", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "prompt is required")
	assert.Contains(t, rec.Body.String(), `"code":2000`)
}

func rateLimitedConfig(rps int) *config.Config {
	cfg := config.Default()
	cfg.Security.RateLimitEnabled = true
	cfg.Security.RateLimitRPS = rps
	return cfg
}

func newToolEcho(l *ToolLimiter, onReject func(string)) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler()
	e.POST("/v1/tools/:name", func(c echo.Context) error {
		return c.String(http.StatusOK, c.Param("name"))
	}, l.Middleware(onReject))
	return e
}

func callTool(e *echo.Echo, tool, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/tools/"+tool, nil)
	req.RemoteAddr = ip + ":5555"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestToolLimiter_PerCallerPerTool(t *testing.T) {
	l := NewToolLimiter(rateLimitedConfig(2))
	require.NotNil(t, l)
	defer l.Close()

	var rejected []string
	e := newToolEcho(l, func(tool string) { rejected = append(rejected, tool) })

	assert.Equal(t, http.StatusOK, callTool(e, "generate_image", "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, callTool(e, "generate_image", "10.0.0.1").Code)

	rec := callTool(e, "generate_image", "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded for tool generate_image")
	assert.Contains(t, rec.Body.String(), `"code":1007`)

	// 同一调用方的其他工具和其他调用方不受影响
	assert.Equal(t, http.StatusOK, callTool(e, "validate_api_key", "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, callTool(e, "generate_image", "10.0.0.2").Code)

	assert.Equal(t, []string{"generate_image"}, rejected)
	assert.Equal(t, 3, l.size())
}

func TestToolLimiter_SweepDropsIdleBuckets(t *testing.T) {
	l := NewToolLimiter(rateLimitedConfig(1))
	defer l.Close()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, _ := l.Allow("10.0.0.1", "edit_image")
	assert.True(t, ok)
	ok, wait := l.Allow("10.0.0.1", "edit_image")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	now = now.Add(bucketIdle + time.Second)
	ok, _ = l.Allow("10.0.0.2", "edit_image")
	assert.True(t, ok)
	l.sweep()
	assert.Equal(t, 1, l.size())
}

func TestToolLimiter_Disabled(t *testing.T) {
	l := NewToolLimiter(config.Default())
	assert.Nil(t, l)
	l.Close()

	e := newToolEcho(l, nil)
	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusOK, callTool(e, "generate_image", "10.0.0.1").Code)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, retryAfterSeconds(0))
	assert.Equal(t, 1, retryAfterSeconds(200*time.Millisecond))
	assert.Equal(t, 3, retryAfterSeconds(2500*time.Millisecond))
}

func TestRequestLogger_RecordsToolOutcome(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	t.Cleanup(logger.Replace(zap.New(core)))

	cfg := config.Default()
	e := echo.New()
	e.Use(RequestLogger(cfg))
	e.POST("/v1/tools/:name", func(c echo.Context) error {
		if c.Param("name") == "edit_image" {
			SetToolOutcome(c, ToolOutcome{IsError: true})
		} else {
			SetToolOutcome(c, ToolOutcome{Images: 2})
		}
		return c.String(http.StatusOK, "done")
	})

	callTool(e, "generate_image", "10.0.0.1")
	callTool(e, "edit_image", "10.0.0.1")

	done := logs.FilterMessage("工具调用完成").All()
	require.Len(t, done, 1)
	assert.Equal(t, zapcore.InfoLevel, done[0].Level)
	fields := done[0].ContextMap()
	assert.Equal(t, "generate_image", fields["tool"])
	assert.Equal(t, false, fields["tool_error"])
	assert.Equal(t, int64(2), fields["images"])

	failed := logs.FilterMessage("工具调用失败").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.WarnLevel, failed[0].Level)
	assert.Equal(t, "edit_image", failed[0].ContextMap()["tool"])
	assert.Equal(t, true, failed[0].ContextMap()["tool_error"])
}

func TestRequestLogger_SetsRequestID(t *testing.T) {
	cfg := config.Default()
	e := newEcho(cfg, RequestLogger(cfg))

	rec := get(e, "/ok", "")
	assert.Regexp(t, `^req_[0-9a-f-]{36}$`, rec.Header().Get(echo.HeaderXRequestID))

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(echo.HeaderXRequestID, "client-id")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, "client-id", rec.Header().Get(echo.HeaderXRequestID))
}
