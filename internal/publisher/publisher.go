package publisher

import (
	"log/slog"
)

// Sink receives live-update events. Implementations must be
// fire-and-forget: a slow or broken sink may drop events but never
// blocks the caller.
type Sink interface {
	Publish(topic string, payload any)
}

// Fanout delivers every event to each underlying sink.
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Fanout{sinks: out}
}

func (f *Fanout) Publish(topic string, payload any) {
	for _, s := range f.sinks {
		s.Publish(topic, payload)
	}
}

var _ Sink = (*Fanout)(nil)

func nopLogger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
