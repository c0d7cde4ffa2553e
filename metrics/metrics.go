// Package metrics 站点的Prometheus指标
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	c "github.com/wookietoast/site/common"
)

// 指标的结果标签
const (
	ResultOK          = "ok"
	ResultError       = "error"
	ResultInvalid     = "invalid"
	ResultUnavailable = "unavailable"
	ResultDuplicate   = "duplicate"
	ResultMissingConf = "missing_conf"
)

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Metrics 计数器、博客与存储的指标
type Metrics struct {
	registry *prometheus.Registry

	CounterIncrements *prometheus.CounterVec
	CounterConflicts  prometheus.Counter
	CounterCorrupt    prometheus.Counter
	RecordsCreated    prometheus.Counter
	StoreOpDuration   *prometheus.HistogramVec
	HTTPRequests      *prometheus.CounterVec
}

// Default 进程级的指标,注册在私有的Registry上
func Default() *Metrics {
	defaultOnce.Do(func() {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		defaultMetrics = New(registry)
	})
	return defaultMetrics
}

// New 在registry上创建指标
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		CounterIncrements: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "site_counter_increments_total",
			Help: "Counter increments by result",
		}, []string{"result"}),
		CounterConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "site_counter_conflicts_total",
			Help: "Conditional counter writes that lost a race and were retried",
		}),
		CounterCorrupt: factory.NewCounter(prometheus.CounterOpts{
			Name: "site_counter_corrupt_total",
			Help: "Counter rows whose count could not be parsed",
		}),
		RecordsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "site_blog_records_created_total",
			Help: "Blog records created",
		}),
		StoreOpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "site_store_op_duration_seconds",
			Help:    "Remote store operation latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"component", "op", "result"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "site_http_requests_total",
			Help: "HTTP requests by path and status code",
		}, []string{"path", "code"}),
	}
}

// Registry 指标所在的Registry
func (p *Metrics) Registry() *prometheus.Registry {
	return p.registry
}

// Handler /metrics的处理器
func (p *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// ObserveStoreOp 记录一次存储操作的耗时
func (p *Metrics) ObserveStoreOp(component, op string, start time.Time, err error) {
	p.StoreOpDuration.WithLabelValues(component, op, ResultOf(err)).Observe(time.Since(start).Seconds())
}

// ObserveHTTP 记录一次HTTP请求
func (p *Metrics) ObserveHTTP(path string, code int) {
	p.HTTPRequests.WithLabelValues(path, strconv.Itoa(code)).Inc()
}

// ResultOf 将错误转换为结果标签
func ResultOf(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, c.ErrValidation):
		return ResultInvalid
	case errors.Is(err, c.ErrDuplicateID):
		return ResultDuplicate
	case errors.Is(err, c.ErrMissingConfiguration):
		return ResultMissingConf
	case errors.Is(err, c.ErrStoreUnavailable):
		return ResultUnavailable
	}
	return ResultError
}
