// internal/publish/logsink.go
package publish

import (
	"log"

	"github.com/fcolinet/wxmodbus/internal/poll"
)

// LogSink writes readings to the logger. It is the sink of last resort
// when no MQTT broker is configured, useful for bring-up and debugging.
type LogSink struct {
	logger *log.Logger
}

func NewLogSink(logger *log.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(r poll.Reading) error {
	s.logger.Printf("reading: %s=%g ts=%s", r.Field, r.Value, r.At.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}
