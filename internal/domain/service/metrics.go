// Package service defines the domain services of the SDK and the interfaces they depend on.
package service

import (
	"time"
)

// Metrics defines the interface for collecting SDK metrics.
// This abstraction keeps the session and feed independent of the monitoring implementation (Prometheus).
// Metrics 定义了收集 SDK 指标的接口。
type Metrics interface {
	// RecordTokenRefresh records one completed grant, successful or not.
	RecordTokenRefresh(entityType string, success bool, duration time.Duration)

	// RecordStoreOperation records a token store read, write or clear.
	RecordStoreOperation(operation string, err error)

	// RecordHTTPRequest records the latency and status of an outbound call. status is 0 when no response arrived.
	RecordHTTPRequest(method string, status int, duration time.Duration)

	// RecordLongPollSignal records the outcome of a long-poll wait.
	RecordLongPollSignal(signal string)

	// RecordEventsEmitted records events handed to the consumer.
	RecordEventsEmitted(count int)

	// RecordDuplicatesDropped records events filtered by the dedup set.
	RecordDuplicatesDropped(count int)

	// RecordFeedError records a feed failure by error kind.
	RecordFeedError(kind string)
}

type noopMetrics struct{}

// NewNoopMetrics returns a Metrics that discards everything.
func NewNoopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordTokenRefresh(string, bool, time.Duration) {}
func (noopMetrics) RecordStoreOperation(string, error) {}
func (noopMetrics) RecordHTTPRequest(string, int, time.Duration) {}
func (noopMetrics) RecordLongPollSignal(string) {}
func (noopMetrics) RecordEventsEmitted(int) {}
func (noopMetrics) RecordDuplicatesDropped(int) {}
func (noopMetrics) RecordFeedError(string) {}
