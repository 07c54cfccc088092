package smoothing

import (
	"testing"
	"time"

	"github.com/jason-s-yu/neonmarble/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateAt(x float64) models.GameState {
	return models.GameState{
		Marbles: []models.Marble{
			{ID: 0, Position: models.Vec(x, 100), Velocity: models.Vec(x/10, 0), Radius: 15, IsMoving: true},
			{ID: 1, Position: models.Vec(200, 100), Radius: 15},
		},
		TurnCount: int(x),
	}
}

func TestSampleMidpoint(t *testing.T) {
	b := NewBuffer()
	t0 := time.Unix(1000, 0)
	b.Add(stateAt(0), t0)
	b.Add(stateAt(100), t0.Add(100*time.Millisecond))

	got, ok := b.Sample(t0.Add(150 * time.Millisecond))
	require.True(t, ok)
	assert.InDelta(t, 50, got.Marbles[0].Position.X, 1e-9)
	assert.InDelta(t, 5, got.Marbles[0].Velocity.X, 1e-9)
	assert.Equal(t, 100, got.TurnCount, "non-kinematic fields come from the newer snapshot")
}

func TestSampleClampsOutsideRange(t *testing.T) {
	b := NewBuffer()
	t0 := time.Unix(1000, 0)
	b.Add(stateAt(0), t0)
	b.Add(stateAt(100), t0.Add(100*time.Millisecond))

	early, ok := b.Sample(t0)
	require.True(t, ok)
	assert.InDelta(t, 0, early.Marbles[0].Position.X, 1e-9)

	late, ok := b.Sample(t0.Add(time.Second))
	require.True(t, ok)
	assert.InDelta(t, 100, late.Marbles[0].Position.X, 1e-9)
}

func TestSamplePicksBracketingPair(t *testing.T) {
	b := NewBuffer()
	t0 := time.Unix(1000, 0)
	for i := 0; i < 4; i++ {
		b.Add(stateAt(float64(i*10)), t0.Add(time.Duration(i)*50*time.Millisecond))
	}
	// render time t0+125ms sits between the 100ms and 150ms snapshots
	got, ok := b.Sample(t0.Add(225 * time.Millisecond))
	require.True(t, ok)
	assert.InDelta(t, 25, got.Marbles[0].Position.X, 1e-9)
}

func TestSampleWithFewSnapshots(t *testing.T) {
	b := NewBuffer()
	_, ok := b.Sample(time.Now())
	assert.False(t, ok)

	b.Add(stateAt(42), time.Now())
	got, ok := b.Sample(time.Now())
	require.True(t, ok)
	assert.Equal(t, 42.0, got.Marbles[0].Position.X)
}

func TestAddPrunesByAgeAndSize(t *testing.T) {
	b := NewBuffer()
	t0 := time.Unix(1000, 0)
	b.Add(stateAt(0), t0)
	b.Add(stateAt(1), t0.Add(600*time.Millisecond))
	assert.Equal(t, 1, b.Len(), "older than MaxAge is dropped")

	for i := 0; i < 30; i++ {
		b.Add(stateAt(float64(i)), t0.Add(time.Second+time.Duration(i)*time.Millisecond))
	}
	assert.Equal(t, MaxSize, b.Len())
	latest, ok := b.Latest()
	require.True(t, ok)
	assert.Equal(t, 29.0, latest.Marbles[0].Position.X)
}

func TestAddCopiesState(t *testing.T) {
	b := NewBuffer()
	s := stateAt(10)
	b.Add(s, time.Now())
	s.Marbles[0].Position.X = 999

	got, _ := b.Latest()
	assert.Equal(t, 10.0, got.Marbles[0].Position.X)
}

func TestClear(t *testing.T) {
	b := NewBuffer()
	b.Add(stateAt(1), time.Now())
	b.Clear()
	assert.Equal(t, 0, b.Len())
	_, ok := b.Latest()
	assert.False(t, ok)
}

func TestInterpolateClampsT(t *testing.T) {
	a, z := stateAt(0), stateAt(100)
	assert.InDelta(t, 0, Interpolate(a, z, -1).Marbles[0].Position.X, 1e-9)
	assert.InDelta(t, 100, Interpolate(a, z, 2).Marbles[0].Position.X, 1e-9)

	a.Marbles = a.Marbles[:1]
	out := Interpolate(a, z, 0.5)
	assert.Equal(t, z.Marbles[1], out.Marbles[1])
}
