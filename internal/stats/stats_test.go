package stats

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_Cycle(t *testing.T) {
	t.Parallel()

	var observed []Progress
	tr := NewTracker(func(p Progress) {
		observed = append(observed, p)
	})

	start := time.Now()
	tr.Begin(3, start)
	tr.Record(1)
	tr.Record(2)
	tr.Record(3)
	tr.End()

	require.Len(t, observed, 5)
	assert.Equal(t, Progress{Completed: 0, Total: 3, Running: true, Elapsed: observed[0].Elapsed}, observed[0])
	assert.Equal(t, 1, observed[1].Completed)
	assert.Equal(t, 3, observed[3].Completed)
	assert.True(t, observed[3].Running)
	assert.False(t, observed[4].Running)
}

func TestProgressJSON_ElapsedInMilliseconds(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Progress{
		Completed: 2,
		Total:     5,
		Elapsed:   1500 * time.Millisecond,
		Running:   true,
	})
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, float64(1500), payload["elapsedMs"])
	assert.Equal(t, float64(2), payload["completed"])
	assert.Equal(t, true, payload["running"])
}

func TestTracker_NoObserver(t *testing.T) {
	t.Parallel()

	tr := NewTracker(nil)

	tr.Begin(2, time.Now())
	tr.Record(1)
	tr.End()

	p := tr.Current()
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, 2, p.Total)
	assert.False(t, p.Running)
}

func TestTracker_Current(t *testing.T) {
	t.Parallel()

	tr := NewTracker(nil)
	tr.Begin(5, time.Now().Add(-time.Second))
	tr.Record(2)

	p := tr.Current()
	assert.Equal(t, 2, p.Completed)
	assert.Equal(t, 5, p.Total)
	assert.True(t, p.Running)
	assert.GreaterOrEqual(t, p.Elapsed, time.Second)
}

func TestTracker_BeginResets(t *testing.T) {
	t.Parallel()

	tr := NewTracker(nil)
	tr.Begin(5, time.Now())
	tr.Record(5)
	tr.End()

	tr.Begin(2, time.Now())

	p := tr.Current()
	assert.Equal(t, 0, p.Completed)
	assert.Equal(t, 2, p.Total)
	assert.True(t, p.Running)
}
