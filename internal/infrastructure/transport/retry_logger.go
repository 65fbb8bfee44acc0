package transport

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/turtacn/contentsdk/pkg/logger"
)

// retryLogger adapts logger.Logger to retryablehttp.LeveledLogger.
type retryLogger struct {
	log logger.Logger
}

var _ retryablehttp.LeveledLogger = (*retryLogger)(nil)

func newRetryLogger(log logger.Logger) *retryLogger {
	return &retryLogger{log: log.WithComponent("retryablehttp")}
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error(context.Background(), msg, nil, toFields(keysAndValues)...)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(context.Background(), msg, toFields(keysAndValues)...)
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug(context.Background(), msg, toFields(keysAndValues)...)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn(context.Background(), msg, toFields(keysAndValues)...)
}

func toFields(keysAndValues []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		value := keysAndValues[i+1]
		// retryablehttp logs the request URL; drop its query string.
		if key == "url" {
			if s, ok := value.(fmt.Stringer); ok {
				value = redact(s.String())
			} else if s, ok := value.(string); ok {
				value = redact(s)
			}
		}
		fields = append(fields, logger.Any(key, value))
	}
	return fields
}
