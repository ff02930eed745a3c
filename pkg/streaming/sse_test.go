package streaming

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/readiness/core"
)

func TestWriteAndParseProgress(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	score := 80
	require.NoError(t, w.WriteProgress(core.ProgressEvent{Kind: core.EventCombo, MainModel: "m", Status: core.StatusCompleted, Score: &score}))
	require.NoError(t, w.WriteComment("ping"))
	require.NoError(t, w.WriteProgress(core.ProgressEvent{Kind: core.EventTest, Test: "refusal", Index: 8, Total: 8}))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var names []string
	var events []core.ProgressEvent
	err = ParseSSEStream(context.Background(), strings.NewReader(rec.Body.String()), func(event string, data []byte) error {
		ev, err := ParseProgress(data)
		if err != nil {
			return err
		}
		names = append(names, event)
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"combo", "test"}, names)
	require.Len(t, events, 2)
	require.NotNil(t, events[0].Score)
	assert.Equal(t, 80, *events[0].Score)
	assert.Equal(t, "refusal", events[1].Test)
}
