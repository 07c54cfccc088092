package game

import "github.com/jason-s-yu/neonmarble/internal/models"

// Drag limits of the on-screen joystick, in pixels.
const (
	MaxDragDistance = 60.0
	MinDragDistance = 10.0
)

// ShotFromDrag converts a joystick drag offset into a shot. Drags no longer than
// MinDragDistance are not shots at all and return ok=false.
func ShotFromDrag(dx, dy float64) (direction models.Vector2D, power float64, ok bool) {
	drag := models.Vec(dx, dy)
	dist := drag.Mag()
	if dist <= MinDragDistance {
		return models.Vector2D{}, 0, false
	}
	if dist > MaxDragDistance {
		dist = MaxDragDistance
	}
	return drag.Normalize(), dist / MaxDragDistance, true
}
