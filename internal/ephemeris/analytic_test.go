package ephemeris

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skywatch/internal/astro"
)

var j2000Instant = time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)

func TestAnalyticSunAtJ2000(t *testing.T) {
	pos, err := NewAnalytic().Position(context.Background(), astro.Sun, j2000Instant)
	require.NoError(t, err)
	assert.InDelta(t, 280.4, pos.Longitude, 0.5)
	assert.InDelta(t, 0.983, pos.Distance, 0.01)
	assert.InDelta(t, 1.02, pos.Velocity, 0.05)
	assert.False(t, pos.Retrograde())
}

func TestAnalyticMoonAtJ2000(t *testing.T) {
	pos, err := NewAnalytic().Position(context.Background(), astro.Moon, j2000Instant)
	require.NoError(t, err)
	assert.InDelta(t, 223.3, pos.Longitude, 1.0)
	assert.Greater(t, pos.Distance, 356000.0)
	assert.Less(t, pos.Distance, 407000.0)
	assert.Greater(t, pos.Velocity, 11.0)
	assert.Less(t, pos.Velocity, 16.0)
}

func TestAnalyticPlanetsStayInRange(t *testing.T) {
	p := NewAnalytic()
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	got, err := Positions(context.Background(), p, at, astro.MajorBodies...)
	require.NoError(t, err)
	require.Len(t, got, len(astro.MajorBodies))
	for body, pos := range got {
		assert.GreaterOrEqual(t, pos.Longitude, 0.0, body)
		assert.Less(t, pos.Longitude, 360.0, body)
		assert.Less(t, pos.Velocity, 2.0+14.0, body)
	}
}

func TestAnalyticUnknownBody(t *testing.T) {
	_, err := NewAnalytic().Position(context.Background(), astro.Body("chiron"), j2000Instant)
	assert.Error(t, err)
}

func TestAnalyticHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewAnalytic().Position(ctx, astro.Sun, j2000Instant)
	assert.ErrorIs(t, err, context.Canceled)
}
