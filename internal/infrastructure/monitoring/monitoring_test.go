package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/turtacn/contentsdk/internal/config"
	"github.com/turtacn/contentsdk/pkg/logger"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]interface{}{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestZapLogger_WritesSanitizedJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewZapLogger(config.LogConfig{Level: "debug"}, &buf)
	require.NoError(t, err)

	log.WithComponent("TokenSession").Info(context.Background(), "token refreshed",
		logger.String("access_token", "abcdefghijklmnop"),
		logger.String("entity_id", "42"),
	)
	log.Error(context.Background(), "grant failed", stderrors.New("boom"))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "token refreshed", entries[0]["msg"])
	assert.Equal(t, "TokenSession", entries[0]["component"])
	assert.Equal(t, "abcd***mnop", entries[0]["access_token"])
	assert.Equal(t, "42", entries[0]["entity_id"])
	assert.Equal(t, "boom", entries[1]["error"])
}

func TestZapLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewZapLogger(config.LogConfig{Level: "warn"}, &buf)
	require.NoError(t, err)
	child := log.WithComponent("feed")

	child.Info(context.Background(), "hidden")
	assert.Zero(t, buf.Len())

	require.NoError(t, log.SetLevel("info"))
	child.Info(context.Background(), "shown")
	assert.Len(t, decodeLines(t, &buf), 1)

	assert.Error(t, log.SetLevel("loud"))
}

func TestNewZapLogger_RejectsUnknownLevel(t *testing.T) {
	_, err := NewZapLogger(config.LogConfig{Level: "verbose"}, nil)
	assert.Error(t, err)
}

func TestMetricsAdapter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	a := NewMetricsAdapter(m)

	a.RecordTokenRefresh("enterprise", true, 20*time.Millisecond)
	a.RecordTokenRefresh("enterprise", false, time.Millisecond)
	a.RecordStoreOperation("write", stderrors.New("down"))
	a.RecordHTTPRequest("GET", 0, time.Second)
	a.RecordHTTPRequest("GET", 200, time.Second)
	a.RecordLongPollSignal("new_change")
	a.RecordEventsEmitted(3)
	a.RecordDuplicatesDropped(2)
	a.RecordFeedError("transport")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenRefreshes.WithLabelValues("enterprise", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenRefreshes.WithLabelValues("enterprise", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperations.WithLabelValues("write", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LongPollSignals.WithLabelValues("new_change")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.EventsEmitted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DuplicatesDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedErrors.WithLabelValues("transport")))
}

func TestNewMetrics_IsolatedRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}

func TestTracingManager_Disabled(t *testing.T) {
	tm, err := NewTracingManager(config.TracingConfig{}, nil)
	require.NoError(t, err)
	assert.NoError(t, tm.Shutdown(context.Background()))
	assert.Empty(t, tm.GetTraceID(context.Background()))
}

func TestTracingManager_TraceOperation(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tm := &TracingManager{tracer: provider.Tracer("test"), provider: provider, logger: logger.NewNoopLogger()}

	var traceID string
	require.NoError(t, tm.TraceOperation(context.Background(), "ok", func(ctx context.Context) error {
		traceID = tm.GetTraceID(ctx)
		return nil
	}))
	assert.NotEmpty(t, traceID)

	err := tm.TraceOperation(context.Background(), "fails", func(ctx context.Context) error {
		return stderrors.New("nope")
	})
	assert.EqualError(t, err, "nope")

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.NoError(t, tm.Shutdown(context.Background()))
}
