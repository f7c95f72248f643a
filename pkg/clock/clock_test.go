package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sproutlabs/subsync/pkg/clock"
)

func TestSystemClockReturnsUTC(t *testing.T) {
	t.Parallel()

	now := clock.New().Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.WithinDuration(t, time.Now().UTC(), now, time.Second)
}

func TestMockClock(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := clock.NewMock(start)
	require.Equal(t, start, m.Now())

	m.Advance(8 * 24 * time.Hour)
	assert.Equal(t, start.AddDate(0, 0, 8), m.Now())

	m.Set(start)
	assert.Equal(t, start, m.Now())
}
