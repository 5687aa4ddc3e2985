package drawrelay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStressTest(t *testing.T) {
	_, url := startRelay(t, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	stats, err := RunStressTest(ctx, StressTestArgs{
		Address:     url,
		NumDrawers:  2,
		NumWatchers: 2,
		DelayMS:     40,
		Verbose:     true,
	})
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Connections)
	assert.Greater(t, stats.Received, int64(0))
	assert.LessOrEqual(t, stats.Min, stats.Avg)
	assert.LessOrEqual(t, stats.Avg, stats.Max)
}

func TestRunStressTestLegacyEvent(t *testing.T) {
	_, url := startRelay(t, Options{Protocol: ProtocolLegacy})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	stats, err := RunStressTest(ctx, StressTestArgs{
		Address:    url,
		NumDrawers: 2,
		DelayMS:    20,
		Event:      StartDrawing,
		Verbose:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Connections)
	assert.Greater(t, stats.Received, int64(0))
}

func TestRunStressTestRejectsEventWithoutPayload(t *testing.T) {
	_, err := RunStressTest(context.Background(), StressTestArgs{
		Address: "ws://localhost:1",
		Event:   ClearCanvas,
	})
	assert.Error(t, err)
}

func TestRunStressTestConnectFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := RunStressTest(ctx, StressTestArgs{
		Address:     "ws://127.0.0.1:1/",
		NumWatchers: 1,
	})
	assert.Error(t, err)
}
