// internal/physics/collision.go
package physics

import (
	"math"

	"github.com/jason-s-yu/neonmarble/internal/models"
)

// ResolveCollisions runs one contact pass over all marbles, after integration.
// Order is fixed: marble pairs, then every marble against every obstacle in list
// order (corrections compound), then goal checks. Inputs are not mutated.
func ResolveCollisions(marbles []models.Marble, obstacles []models.Obstacle, goal models.Goal) []models.Marble {
	out := append([]models.Marble(nil), marbles...)

	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			out[i], out[j] = CollideMarbles(out[i], out[j])
		}
	}

	for i := range out {
		for _, o := range obstacles {
			out[i] = CollideObstacle(out[i], o)
		}
	}

	for i := range out {
		if !out[i].HasFinished && ReachedGoal(out[i], goal) {
			out[i] = finish(out[i])
		}
	}
	return out
}

// CollideMarbles separates two overlapping marbles and exchanges velocity along the
// contact normal. Pairs already moving apart are returned untouched.
func CollideMarbles(a, b models.Marble) (models.Marble, models.Marble) {
	if a.HasFinished || b.HasFinished {
		return a, b
	}
	delta := a.Position.Sub(b.Position)
	overlap := a.Radius + b.Radius - delta.Mag()
	if overlap <= 0 {
		return a, b
	}

	normal := delta.Normalize()
	velAlongNormal := a.Velocity.Sub(b.Velocity).Dot(normal)
	if velAlongNormal > 0 {
		return a, b
	}

	separation := normal.Scale(overlap / 2)
	impulse := normal.Scale(velAlongNormal * Restitution)

	a.Position = a.Position.Add(separation)
	b.Position = b.Position.Sub(separation)
	a.Velocity = a.Velocity.Sub(impulse)
	b.Velocity = b.Velocity.Add(impulse)
	a.IsMoving = true
	b.IsMoving = true
	return a, b
}

// CollideObstacle dispatches on obstacle geometry.
func CollideObstacle(m models.Marble, o models.Obstacle) models.Marble {
	if m.HasFinished {
		return m
	}
	switch o.Type {
	case models.ObstacleCircle:
		return CollideCircle(m, o)
	case models.ObstacleRectangle:
		return CollideRectangle(m, o)
	}
	return m
}

// CollideCircle pushes m fully out of a circular obstacle and reflects its velocity.
func CollideCircle(m models.Marble, o models.Obstacle) models.Marble {
	if o.Radius <= 0 {
		return m
	}
	delta := m.Position.Sub(o.Position)
	overlap := m.Radius + o.Radius - delta.Mag()
	if overlap <= 0 {
		return m
	}
	return reflect(m, delta.Normalize(), overlap)
}

// CollideRectangle resolves m against an axis aligned rectangle using the closest
// point on the box. A centre inside the box is ejected along the dominant axis.
func CollideRectangle(m models.Marble, o models.Obstacle) models.Marble {
	if o.Width <= 0 || o.Height <= 0 {
		return m
	}
	halfW, halfH := o.Width/2, o.Height/2

	closest := models.Vec(
		clamp(m.Position.X, o.Position.X-halfW, o.Position.X+halfW),
		clamp(m.Position.Y, o.Position.Y-halfH, o.Position.Y+halfH),
	)
	delta := m.Position.Sub(closest)
	dist := delta.Mag()
	if dist >= m.Radius {
		return m
	}

	if dist == 0 {
		dx := m.Position.X - o.Position.X
		dy := m.Position.Y - o.Position.Y
		if math.Abs(dx/halfW) > math.Abs(dy/halfH) {
			if dx > 0 {
				m.Position.X = o.Position.X + halfW + m.Radius
			} else {
				m.Position.X = o.Position.X - halfW - m.Radius
			}
			m.Velocity.X = -m.Velocity.X * Restitution
		} else {
			if dy > 0 {
				m.Position.Y = o.Position.Y + halfH + m.Radius
			} else {
				m.Position.Y = o.Position.Y - halfH - m.Radius
			}
			m.Velocity.Y = -m.Velocity.Y * Restitution
		}
		m.IsMoving = true
		return m
	}

	return reflect(m, delta.Normalize(), m.Radius-dist)
}

// ReachedGoal reports whether m sits far enough inside the goal to count as finished.
func ReachedGoal(m models.Marble, goal models.Goal) bool {
	return m.Position.Distance(goal.Position) < goal.Radius-m.Radius/2
}

// reflect moves m by overlap along n and mirrors its velocity across the contact plane.
func reflect(m models.Marble, n models.Vector2D, overlap float64) models.Marble {
	m.Position = m.Position.Add(n.Scale(overlap))
	m.Velocity = m.Velocity.Sub(n.Scale(2 * m.Velocity.Dot(n) * Restitution))
	m.IsMoving = true
	return m
}

func finish(m models.Marble) models.Marble {
	m.HasFinished = true
	m.IsMoving = false
	m.Velocity = models.Vector2D{}
	return m
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
