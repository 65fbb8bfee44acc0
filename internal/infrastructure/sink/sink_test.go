package sink

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/contentsdk/internal/config"
	"github.com/turtacn/contentsdk/internal/domain/models"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func sampleEvents() []models.Event {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return []models.Event{
		{EventID: "A", EventType: "ITEM_UPLOAD", CreatedAt: at},
		{EventID: "B", EventType: "ITEM_PREVIEW", CreatedAt: at},
	}
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaSink_Publish(t *testing.T) {
	w := &fakeWriter{}
	s := newKafkaSink(w, "", nil)

	require.NoError(t, s.Publish(context.Background(), sampleEvents()))
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "A", string(w.msgs[0].Key))
	assert.Equal(t, "ITEM_UPLOAD", headerValue(w.msgs[0], headerEventType))
	assert.Empty(t, headerValue(w.msgs[0], headerSignature))

	var decoded models.Event
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &decoded))
	assert.Equal(t, "B", decoded.EventID)

	require.NoError(t, s.Close())
	assert.True(t, w.closed)
}

func TestKafkaSink_SignsMessages(t *testing.T) {
	w := &fakeWriter{}
	s := newKafkaSink(w, "secret", nil)

	require.NoError(t, s.Publish(context.Background(), sampleEvents()[:1]))
	assert.Equal(t, sign(w.msgs[0].Value, []byte("secret")), headerValue(w.msgs[0], headerSignature))
	assert.NotEqual(t, sign(w.msgs[0].Value, []byte("other")), headerValue(w.msgs[0], headerSignature))
}

func TestKafkaSink_PropagatesWriteErrors(t *testing.T) {
	w := &fakeWriter{err: stderrors.New("broker down")}
	err := newKafkaSink(w, "", nil).Publish(context.Background(), sampleEvents())
	assert.EqualError(t, err, "broker down")
}

func TestKafkaSink_EmptyBatch(t *testing.T) {
	w := &fakeWriter{err: stderrors.New("unused")}
	assert.NoError(t, newKafkaSink(w, "", nil).Publish(context.Background(), nil))
}

func TestWriterSink_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriterSink(&buf)

	require.NoError(t, s.Publish(context.Background(), sampleEvents()))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"event_id":"A"`)
	assert.Contains(t, lines[1], `"event_type":"ITEM_PREVIEW"`)
	assert.NoError(t, s.Close())
}

func TestWriterSink_StopsOnCancelledContext(t *testing.T) {
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, NewWriterSink(&buf).Publish(ctx, sampleEvents()), context.Canceled)
	assert.Zero(t, buf.Len())
}

func TestNew(t *testing.T) {
	s, err := New(config.SinkConfig{}, &bytes.Buffer{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &WriterSink{}, s)

	s, err = New(config.SinkConfig{Type: "kafka", Kafka: config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "events"}}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &KafkaSink{}, s)

	_, err = New(config.SinkConfig{Type: "kafka"}, nil, nil)
	assert.Error(t, err)
	_, err = New(config.SinkConfig{Type: "s3"}, nil, nil)
	assert.Error(t, err)
}
