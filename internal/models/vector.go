// internal/models/vector.go
package models

import "math"

// Vector2D is a 2D value type used for positions, velocities and directions.
type Vector2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vec is shorthand for Vector2D{X: x, Y: y}.
func Vec(x, y float64) Vector2D {
	return Vector2D{X: x, Y: y}
}

func (v Vector2D) Add(o Vector2D) Vector2D {
	return Vector2D{X: v.X + o.X, Y: v.Y + o.Y}
}

func (v Vector2D) Sub(o Vector2D) Vector2D {
	return Vector2D{X: v.X - o.X, Y: v.Y - o.Y}
}

func (v Vector2D) Scale(f float64) Vector2D {
	return Vector2D{X: v.X * f, Y: v.Y * f}
}

func (v Vector2D) Dot(o Vector2D) float64 {
	return v.X*o.X + v.Y*o.Y
}

// Mag returns the euclidean length of v.
func (v Vector2D) Mag() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y)
}

// Normalize returns the unit vector of v. The zero vector normalizes to itself.
func (v Vector2D) Normalize() Vector2D {
	m := v.Mag()
	if m == 0 {
		return Vector2D{}
	}
	return Vector2D{X: v.X / m, Y: v.Y / m}
}

// Distance returns |v - o|.
func (v Vector2D) Distance(o Vector2D) float64 {
	return v.Sub(o).Mag()
}

// Lerp interpolates between v and o; t=0 yields v, t=1 yields o.
func (v Vector2D) Lerp(o Vector2D, t float64) Vector2D {
	return Vector2D{X: v.X + (o.X-v.X)*t, Y: v.Y + (o.Y-v.Y)*t}
}

// IsZero reports whether both components are exactly zero.
func (v Vector2D) IsZero() bool {
	return v.X == 0 && v.Y == 0
}
