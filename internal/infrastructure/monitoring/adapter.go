// Package monitoring provides the zap logger, Prometheus metrics and
// OpenTelemetry tracing behind the SDK's logging and metrics interfaces.
package monitoring

import (
	"time"

	"github.com/turtacn/contentsdk/internal/domain/service"
)

// MetricsAdapter implements the domain's service.Metrics interface on top of the Prometheus Metrics.
// MetricsAdapter 实现了域的 service.Metrics 接口，将指标发送到 Prometheus 后端。
type MetricsAdapter struct {
	metrics *Metrics
}

// NewMetricsAdapter wraps metrics as a service.Metrics.
// NewMetricsAdapter 创建一个包装具体 Prometheus Metrics 对象的新适配器。
func NewMetricsAdapter(metrics *Metrics) service.Metrics {
	return &MetricsAdapter{metrics: metrics}
}

func (a *MetricsAdapter) RecordTokenRefresh(entityType string, success bool, duration time.Duration) {
	a.metrics.RecordTokenRefresh(entityType, result(success), duration)
}

func (a *MetricsAdapter) RecordStoreOperation(operation string, err error) {
	a.metrics.StoreOperations.WithLabelValues(operation, result(err == nil)).Inc()
}

func (a *MetricsAdapter) RecordHTTPRequest(method string, status int, duration time.Duration) {
	a.metrics.RecordHTTPRequest(method, status, duration)
}

func (a *MetricsAdapter) RecordLongPollSignal(signal string) {
	a.metrics.LongPollSignals.WithLabelValues(signal).Inc()
}

func (a *MetricsAdapter) RecordEventsEmitted(count int) {
	a.metrics.EventsEmitted.Add(float64(count))
}

func (a *MetricsAdapter) RecordDuplicatesDropped(count int) {
	a.metrics.DuplicatesDropped.Add(float64(count))
}

func (a *MetricsAdapter) RecordFeedError(kind string) {
	a.metrics.FeedErrors.WithLabelValues(kind).Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
