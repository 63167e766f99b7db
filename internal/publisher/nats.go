package publisher

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
)

// NATSMetrics is the instrumentation hook for the NATS sink.
type NATSMetrics interface {
	NATSPublished()
	NATSPublishErr(subject string)
	NATSSetConnected(connected bool)
}

// NATSSink mirrors hub events onto a NATS subject tree so external
// consumers (signage, analytics) can tap the same live stream.
type NATSSink struct {
	nc            *nats.Conn
	subjectPrefix string
	logger        *slog.Logger
	metrics       NATSMetrics
}

func NewNATSSink(url, subjectPrefix string, logger *slog.Logger, m NATSMetrics) (*NATSSink, error) {
	logger = nopLogger(logger).With("component", "nats_sink")

	nc, err := nats.Connect(url,
		nats.Name("campusbus"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats connection closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSSink{nc: nc, subjectPrefix: subjectPrefix, logger: logger, metrics: m}, nil
}

func (s *NATSSink) Close() {
	if s.nc != nil {
		s.nc.Drain()
		s.nc.Close()
	}
}

// Publish maps a hub topic like "positions:loop-a" onto the subject
// "<prefix>.positions.loop-a". Failures are logged and counted, never
// propagated.
func (s *NATSSink) Publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("payload not serializable", "topic", topic, "error", err)
		return
	}

	subject := s.subjectPrefix + "." + topicToSubject(topic)
	if err := s.nc.Publish(subject, data); err != nil {
		if s.metrics != nil {
			s.metrics.NATSPublishErr(subject)
		}
		s.logger.Warn("nats publish failed", "subject", subject, "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.NATSPublished()
	}
}

var _ Sink = (*NATSSink)(nil)

// topicToSubject rewrites hub topic separators into NATS token dots
// and strips characters NATS subjects cannot carry.
func topicToSubject(topic string) string {
	topic = strings.TrimSpace(topic)
	topic = strings.ReplaceAll(topic, ":", ".")
	repl := strings.NewReplacer(" ", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	topic = repl.Replace(topic)
	topic = strings.Trim(topic, ".")
	if topic == "" {
		topic = "_"
	}
	return topic
}
