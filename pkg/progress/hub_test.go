package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/readiness/core"
)

func TestHubFanOut(t *testing.T) {
	h := NewHub()
	a, cancelA := h.Subscribe(4)
	b, cancelB := h.Subscribe(4)
	defer cancelB()

	h.Publish(core.ProgressEvent{Kind: core.EventTest, Test: "suppress", Status: core.StatusRunning})

	for _, ch := range []<-chan core.ProgressEvent{a, b} {
		select {
		case ev := <-ch:
			assert.Equal(t, "suppress", ev.Test)
			assert.False(t, ev.Time.IsZero(), "time stamped on publish")
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}

	cancelA()
	cancelA()
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, h.Subscribers())
}

func TestHubPublishNeverBlocks(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.Publish(core.ProgressEvent{Kind: core.EventTest, Index: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Equal(t, int64(9), h.Dropped())
}

func TestRecorderAndMulti(t *testing.T) {
	rec := &Recorder{}
	m := Multi{rec, nil, core.NopBroadcaster{}}
	m.Publish(core.ProgressEvent{Kind: core.EventCombo})
	m.Publish(core.ProgressEvent{Kind: core.EventExclusion})

	require.Len(t, rec.Events(), 2)
	assert.Len(t, rec.OfKind(core.EventExclusion), 1)
}
