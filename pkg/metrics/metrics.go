// Package metrics 暴露组织权限服务的 Prometheus 指标。
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resolutionCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orgauth",
		Subsystem: "resolution_cache",
		Name:      "requests_total",
		Help:      "Total number of resolution cache lookups broken down by hit/miss/error.",
	}, []string{"result"})

	resolutionCacheInvalidate = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orgauth",
		Subsystem: "resolution_cache",
		Name:      "invalidate_total",
		Help:      "Total number of resolution cache invalidations broken down by reason.",
	}, []string{"reason"})

	writeConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orgauth",
		Subsystem: "write",
		Name:      "conflicts_total",
		Help:      "Total number of optimistic write conflicts broken down by record kind.",
	}, []string{"kind"})

	resolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orgauth",
		Subsystem: "resolution",
		Name:      "duration_seconds",
		Help:      "Latency of effective assignment resolution.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"source"})

	delegationsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "orgauth",
		Subsystem: "delegation",
		Name:      "expired_total",
		Help:      "Total number of delegations whose expiry was persisted.",
	})

	swapsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orgauth",
		Subsystem: "swap",
		Name:      "finished_total",
		Help:      "Total number of swap executions broken down by outcome.",
	}, []string{"outcome"})

	httpRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orgauth",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency of HTTP requests broken down by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// RecordCacheRequest 记录一次解析缓存查询。err 非空时记为 error。
func RecordCacheRequest(hit bool, err error) {
	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case hit:
		result = "hit"
	}
	resolutionCacheRequests.WithLabelValues(result).Inc()
}

// RecordCacheInvalidate 记录一次缓存失效。
func RecordCacheInvalidate(reason string) {
	if reason == "" {
		reason = "manual"
	}
	resolutionCacheInvalidate.WithLabelValues(reason).Inc()
}

// RecordWriteConflict 记录一次版本冲突。
func RecordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	writeConflicts.WithLabelValues(kind).Inc()
}

// ObserveResolve 记录一次解析耗时，source 为 cache 或 store。
func ObserveResolve(source string, d time.Duration) {
	resolveDuration.WithLabelValues(source).Observe(d.Seconds())
}

// RecordDelegationExpired 记录持久化的授权过期数量。
func RecordDelegationExpired(n int) {
	delegationsExpired.Add(float64(n))
}

// RecordSwapFinished 记录互换执行结果：completed、completed_with_errors 或 failed。
func RecordSwapFinished(outcome string) {
	swapsFinished.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest 记录一次 HTTP 请求。route 使用路由模板，避免标签基数随路径参数增长。
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
