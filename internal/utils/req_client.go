package utils

import (
	"crypto/tls"
	"net"
	"net/http"
	"strings"
	"time"

	"imagegen-mcp/internal/config"
	"imagegen-mcp/internal/logger"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const userAgent = "imagegen-mcp/1.0"

// NewProviderClient 创建访问图像接口的客户端
// 图像生成请求不是幂等的，这里不做自动重试
func NewProviderClient(cfg *config.Config) *resty.Client {
	client := resty.NewWithClient(&http.Client{
		Transport: newTransport(cfg),
		Timeout:   cfg.HTTPClient.Timeout,
	}).
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent).
		OnBeforeRequest(func(c *resty.Client, r *resty.Request) error {
			logger.Debug("图像接口请求",
				zap.Any("headers", loggedHeaders(r, cfg.Logging.MaskSensitive)),
				zap.String("url", r.URL),
				zap.String("method", r.Method),
			)
			return nil
		})

	return client
}

// NewFetchClient 创建下载图片 URL 的客户端，网络错误和 5xx 时重试
func NewFetchClient(cfg *config.Config) *resty.Client {
	client := resty.NewWithClient(&http.Client{
		Transport: newTransport(cfg),
		Timeout:   cfg.HTTPClient.Timeout,
	}).
		SetRetryCount(cfg.HTTPClient.RetryCount).
		SetRetryWaitTime(cfg.HTTPClient.RetryWaitTime).
		SetRetryMaxWaitTime(cfg.HTTPClient.RetryMaxWaitTime).
		SetHeader("User-Agent", userAgent)

	// 添加重试条件
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		// 网络错误或5xx错误时重试
		return err != nil || r.StatusCode() >= 500
	})

	return client
}

// newTransport 创建自定义的Transport
func newTransport(cfg *config.Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.HTTPClient.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.HTTPClient.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.HTTPClient.MaxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.Security.TLSSkipVerify,
			MinVersion:         tls.VersionTLS12, // 强制使用TLS 1.2+
		},
	}
}

// loggedHeaders 取每个请求头的第一个值，Authorization 按配置脱敏
// 鉴权头由调用方通过 SetHeader 显式设置，钩子执行时已经存在
func loggedHeaders(r *resty.Request, mask bool) map[string]string {
	headers := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	if auth, ok := headers["Authorization"]; ok && mask {
		headers["Authorization"] = maskToken(auth)
	}
	return headers
}

// maskToken 只保留令牌前几位
func maskToken(auth string) string {
	token := strings.TrimPrefix(auth, "Bearer ")
	if len(token) <= 8 {
		return "Bearer ***"
	}
	return "Bearer " + token[:4] + "..."
}
