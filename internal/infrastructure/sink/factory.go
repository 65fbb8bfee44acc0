package sink

import (
	"fmt"
	"io"
	"os"

	"github.com/turtacn/contentsdk/internal/config"
	domainService "github.com/turtacn/contentsdk/internal/domain/service"
	"github.com/turtacn/contentsdk/pkg/errors"
	"github.com/turtacn/contentsdk/pkg/logger"
)

// New builds the sink selected by cfg.Type. stdout is the default.
func New(cfg config.SinkConfig, stdout io.Writer, log logger.Logger) (domainService.EventSink, error) {
	switch cfg.Type {
	case "", "stdout":
		if stdout == nil {
			stdout = os.Stdout
		}
		return NewWriterSink(stdout), nil
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "" {
			return nil, errors.ErrInvalidConfig("sink.kafka requires brokers and topic")
		}
		return NewKafkaSink(cfg.Kafka, log), nil
	default:
		return nil, errors.ErrInvalidConfig(fmt.Sprintf("sink.type %q is not supported", cfg.Type))
	}
}

func isStdStream(w io.Writer) bool {
	return w == os.Stdout || w == os.Stderr
}
