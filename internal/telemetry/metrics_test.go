package telemetry

import (
	"context"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRefreshMetrics_NilProvider(t *testing.T) {
	t.Parallel()

	m, err := NewRefreshMetrics(nil)

	require.NoError(t, err)
	assert.Nil(t, m)

	// Nil metrics are safe no-ops.
	ctx := context.Background()
	m.RecordCycleDuration(ctx, time.Second, false)
	m.RecordRoomsLive(ctx, 3)
	m.RecordFetchFailure(ctx, "bilibili")
}

func TestNewRefreshMetrics_Records(t *testing.T) {
	t.Parallel()

	registry := prom.NewRegistry()
	provider, err := NewMeterProvider("roomwatch-test", "0.0.1", registry)
	require.NoError(t, err)

	m, err := NewRefreshMetrics(provider)
	require.NoError(t, err)
	require.NotNil(t, m)

	ctx := context.Background()
	m.RecordCycleDuration(ctx, 2*time.Second, true)
	m.RecordRoomsLive(ctx, 5)
	m.RecordFetchFailure(ctx, "douyu")
	m.RecordFetchFailure(ctx, "douyu")

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["roomwatch_cycle_duration_seconds"])
	assert.True(t, names["roomwatch_rooms_live"])
	assert.True(t, names["roomwatch_fetch_failures_total"])
}
