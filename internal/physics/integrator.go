// internal/physics/integrator.go
package physics

import "github.com/jason-s-yu/neonmarble/internal/models"

// Tuning shared by the integrator, collision resolver and shot handling.
const (
	Friction             = 0.985 // velocity retained per tick
	MinVelocity          = 0.1   // speed at or under which a marble stops
	Restitution          = 0.8   // velocity retained on bounce
	ShootPowerMultiplier = 25.0  // launch speed at full power, units per tick
)

// Integrate advances a moving marble by one tick inside a width x height map.
// Stationary and finished marbles are returned unchanged.
func Integrate(m models.Marble, width, height float64) models.Marble {
	if !m.IsMoving || m.HasFinished {
		return m
	}

	m.Position = m.Position.Add(m.Velocity)
	m.Velocity = m.Velocity.Scale(Friction)

	m.Position.X, m.Velocity.X = bounce(m.Position.X, m.Velocity.X, m.Radius, width)
	m.Position.Y, m.Velocity.Y = bounce(m.Position.Y, m.Velocity.Y, m.Radius, height)

	if m.Velocity.Mag() <= MinVelocity {
		m.Velocity = models.Vector2D{}
		m.IsMoving = false
	}
	return m
}

// bounce clamps one axis into [radius, extent-radius] and reflects its velocity on contact.
func bounce(pos, vel, radius, extent float64) (float64, float64) {
	switch {
	case pos-radius < 0:
		return radius, -vel * Restitution
	case pos+radius > extent:
		return extent - radius, -vel * Restitution
	}
	return pos, vel
}
