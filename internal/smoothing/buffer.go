// Package smoothing renders remote snapshots slightly in the past so a guest sees
// continuous motion between host updates.
package smoothing

import (
	"time"

	"github.com/jason-s-yu/neonmarble/internal/models"
)

const (
	Delay   = 100 * time.Millisecond
	MaxAge  = 500 * time.Millisecond
	MaxSize = 20
)

type entry struct {
	state      models.GameState
	receivedAt time.Time
}

// Buffer holds recent snapshots in arrival order. It is not safe for concurrent use;
// the frame loop owns it.
type Buffer struct {
	Delay   time.Duration
	MaxAge  time.Duration
	MaxSize int

	entries []entry
}

func NewBuffer() *Buffer {
	return &Buffer{Delay: Delay, MaxAge: MaxAge, MaxSize: MaxSize}
}

// Add appends a snapshot received at at, then drops entries older than MaxAge
// relative to at and trims to the newest MaxSize.
func (b *Buffer) Add(state models.GameState, at time.Time) {
	b.entries = append(b.entries, entry{state: state.Clone(), receivedAt: at})

	cutoff := at.Add(-b.MaxAge)
	kept := b.entries[:0]
	for _, e := range b.entries {
		if !e.receivedAt.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	if len(kept) > b.MaxSize {
		kept = kept[len(kept)-b.MaxSize:]
	}
	b.entries = kept
}

func (b *Buffer) Len() int { return len(b.entries) }

// Latest returns the newest snapshot.
func (b *Buffer) Latest() (models.GameState, bool) {
	if len(b.entries) == 0 {
		return models.GameState{}, false
	}
	return b.entries[len(b.entries)-1].state.Clone(), true
}

func (b *Buffer) Clear() { b.entries = b.entries[:0] }

// Sample returns the state to draw at now: marble positions and velocities are
// interpolated between the two snapshots bracketing now-Delay. Before the first or
// after the last snapshot the nearest pair is used with t clamped, so the result
// never leaves the recorded range. Fewer than two snapshots yields Latest.
func (b *Buffer) Sample(now time.Time) (models.GameState, bool) {
	if len(b.entries) < 2 {
		return b.Latest()
	}
	render := now.Add(-b.Delay)

	from, to := len(b.entries)-2, len(b.entries)-1
	switch {
	case render.Before(b.entries[0].receivedAt):
		from, to = 0, 1
	default:
		for i := 0; i < len(b.entries)-1; i++ {
			if !b.entries[i].receivedAt.After(render) && !b.entries[i+1].receivedAt.Before(render) {
				from, to = i, i+1
				break
			}
		}
	}

	a, z := b.entries[from], b.entries[to]
	t := 1.0
	if span := z.receivedAt.Sub(a.receivedAt); span > 0 {
		t = float64(render.Sub(a.receivedAt)) / float64(span)
	}
	return Interpolate(a.state, z.state, t), true
}

// Interpolate lerps marble positions and velocities from a toward z with t clamped to
// [0, 1]. Everything else comes from z. Marbles missing in a are taken from z as is.
func Interpolate(a, z models.GameState, t float64) models.GameState {
	t = max(0, min(1, t))
	out := z.Clone()
	for i := range out.Marbles {
		if i >= len(a.Marbles) {
			break
		}
		prev := a.Marbles[i]
		out.Marbles[i].Position = prev.Position.Lerp(z.Marbles[i].Position, t)
		out.Marbles[i].Velocity = prev.Velocity.Lerp(z.Marbles[i].Velocity, t)
	}
	return out
}
