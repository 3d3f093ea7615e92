// Package metrics 收集工具调用和上游请求的指标
package metrics

import (
	"net/http"
	"time"

	"imagegen-mcp/internal/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector 指标收集器，nil 时所有方法都是空操作
type Collector struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	imagesSaved       *prometheus.CounterVec
	tokensUsed        *prometheus.CounterVec
	dirFallbacks      prometheus.Counter
	rateLimited       *prometheus.CounterVec
}

// NewCollector 创建指标收集器，使用独立的 registry
func NewCollector(namespace string) *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of tool operations",
		},
		[]string{"operation", "status"},
	)

	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Tool operation duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120, 300},
		},
		[]string{"operation"},
	)

	c.imagesSaved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_saved_total",
			Help:      "Total number of images written to disk",
		},
		[]string{"operation"},
	)

	c.tokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_used_total",
			Help:      "Provider-reported token usage",
		},
		[]string{"type"},
	)

	c.dirFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "save_dir_fallbacks_total",
			Help:      "Number of times the requested save directory was replaced by the default",
		},
	)

	c.rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Tool calls rejected by the per-caller rate limit",
		},
		[]string{"tool"},
	)

	c.registry.MustRegister(
		c.operationsTotal,
		c.operationDuration,
		c.imagesSaved,
		c.tokensUsed,
		c.dirFallbacks,
		c.rateLimited,
	)
	return c
}

// ObserveOperation 记录一次工具调用
func (c *Collector) ObserveOperation(operation string, success bool, duration time.Duration, images int) {
	if c == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	c.operationsTotal.WithLabelValues(operation, status).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if images > 0 {
		c.imagesSaved.WithLabelValues(operation).Add(float64(images))
	}
}

// AddTokens 累加用量，缺失字段跳过
func (c *Collector) AddTokens(usage *types.TokenUsage) {
	if c == nil || usage == nil {
		return
	}
	add := func(kind string, v *int) {
		if v != nil && *v > 0 {
			c.tokensUsed.WithLabelValues(kind).Add(float64(*v))
		}
	}
	add("input", usage.InputTokens)
	add("output", usage.OutputTokens)
	add("total", usage.TotalTokens)
}

// DirectoryFallback 记录一次保存目录回退
func (c *Collector) DirectoryFallback() {
	if c == nil {
		return
	}
	c.dirFallbacks.Inc()
}

// RateLimited 记录一次被限流的工具调用
func (c *Collector) RateLimited(tool string) {
	if c == nil {
		return
	}
	c.rateLimited.WithLabelValues(tool).Inc()
}

// Registry 暴露 registry 供测试读取
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler /metrics 处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// OperationsCounter operations_total，按 operation/status 区分
func (c *Collector) OperationsCounter() *prometheus.CounterVec {
	return c.operationsTotal
}

// FallbackCounter save_dir_fallbacks_total
func (c *Collector) FallbackCounter() prometheus.Counter {
	return c.dirFallbacks
}

// RateLimitedCounter rate_limited_total，按 tool 区分
func (c *Collector) RateLimitedCounter() *prometheus.CounterVec {
	return c.rateLimited
}
