package sink

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/turtacn/contentsdk/internal/domain/models"
	domainService "github.com/turtacn/contentsdk/internal/domain/service"
)

// WriterSink writes one JSON document per line.
type WriterSink struct {
	mu  sync.Mutex
	out io.Writer
	enc *json.Encoder
}

var _ domainService.EventSink = (*WriterSink)(nil)

// NewWriterSink creates a sink writing to out.
func NewWriterSink(out io.Writer) *WriterSink {
	return &WriterSink{out: out, enc: json.NewEncoder(out)}
}

func (s *WriterSink) Publish(ctx context.Context, events []models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.enc.Encode(&events[i]); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the writer when it is an io.Closer other than stdout or stderr.
func (s *WriterSink) Close() error {
	if c, ok := s.out.(io.Closer); ok && !isStdStream(s.out) {
		return c.Close()
	}
	return nil
}
