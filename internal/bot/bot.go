// Package bot picks shots for headless players.
package bot

import (
	"math"
	"math/rand"

	"github.com/jason-s-yu/neonmarble/internal/game"
	"github.com/jason-s-yu/neonmarble/internal/models"
)

// Bot aims at the goal with a random angular error, the way a player dragging the
// joystick would.
type Bot struct {
	// Jitter is the largest aiming error in radians.
	Jitter float64

	rng *rand.Rand
}

func New(seed int64) *Bot {
	return &Bot{Jitter: 0.35, rng: rand.New(rand.NewSource(seed))}
}

// Drag returns a joystick drag offset for player's next shot.
func (b *Bot) Drag(state models.GameState, player int) (dx, dy float64) {
	from := state.Marbles[player].Position
	aim := state.Goal.Position.Sub(from).Normalize()
	if aim.IsZero() {
		aim = models.Vec(0, 1)
	}

	angle := (b.rng.Float64()*2 - 1) * b.Jitter
	sin, cos := math.Sincos(angle)
	dir := models.Vec(aim.X*cos-aim.Y*sin, aim.X*sin+aim.Y*cos)

	// Stay clear of the dead zone so every drag is a shot.
	lo := game.MinDragDistance * 2
	length := lo + b.rng.Float64()*(game.MaxDragDistance-lo)
	return dir.X * length, dir.Y * length
}

// Shot converts the next drag into a direction and power.
func (b *Bot) Shot(state models.GameState, player int) (models.Vector2D, float64) {
	dx, dy := b.Drag(state, player)
	dir, power, ok := game.ShotFromDrag(dx, dy)
	if !ok {
		return models.Vec(0, 1), 1
	}
	return dir, power
}
