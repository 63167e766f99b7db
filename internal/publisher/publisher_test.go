package publisher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	topics []string
}

func (r *recordingSink) Publish(topic string, _ any) {
	r.topics = append(r.topics, topic)
}

func TestFanoutDeliversToAllSinks(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}

	f := NewFanout(a, nil, b)
	f.Publish("positions:loop-a", "x")
	f.Publish("status:all", "y")

	assert.Equal(t, []string{"positions:loop-a", "status:all"}, a.topics)
	assert.Equal(t, []string{"positions:loop-a", "status:all"}, b.topics)
}

func TestTopicToSubject(t *testing.T) {
	cases := map[string]string{
		"positions:loop-a": "positions.loop-a",
		"status:all":       "status.all",
		"bad topic*":       "bad_topic_",
		"":                 "_",
		":leading":         "leading",
	}
	for in, want := range cases {
		assert.Equal(t, want, topicToSubject(in), "input %q", in)
	}
}
