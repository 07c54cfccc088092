// internal/models/state.go
package models

import (
	"errors"
	"fmt"
	"slices"
)

// Marble is one player's ball. ID doubles as the player index.
type Marble struct {
	ID          int      `json:"id"`
	Position    Vector2D `json:"position"`
	Velocity    Vector2D `json:"velocity"`
	Radius      float64  `json:"radius"`
	Color       string   `json:"color"`
	GlowColor   string   `json:"glowColor"`
	IsMoving    bool     `json:"isMoving"`
	HasFinished bool     `json:"hasFinished"`
}

// ObstacleType discriminates obstacle collision geometry.
type ObstacleType string

const (
	ObstacleRectangle ObstacleType = "rectangle"
	ObstacleCircle    ObstacleType = "circle"
)

// Obstacle is a static collider. Rectangles are axis aligned for collision purposes;
// Rotation only affects how a client draws it.
type Obstacle struct {
	ID       int          `json:"id"`
	Type     ObstacleType `json:"type"`
	Position Vector2D     `json:"position"`
	Width    float64      `json:"width,omitempty"`
	Height   float64      `json:"height,omitempty"`
	Radius   float64      `json:"radius,omitempty"`
	Rotation float64      `json:"rotation"`
	Color    string       `json:"color"`
	Module   string       `json:"module,omitempty"`
}

// Goal is the single target hole of a match.
type Goal struct {
	Position Vector2D `json:"position"`
	Radius   float64  `json:"radius"`
}

// GameState is the authoritative match snapshot exchanged between peers.
type GameState struct {
	Marbles       []Marble   `json:"marbles"`
	Obstacles     []Obstacle `json:"obstacles"`
	Goal          Goal       `json:"goal"`
	CurrentPlayer int        `json:"currentPlayer"`
	MapWidth      float64    `json:"mapWidth"`
	MapHeight     float64    `json:"mapHeight"`
	GameOver      bool       `json:"gameOver"`
	Winner        *int       `json:"winner"`
	TurnCount     int        `json:"turnCount"`
	IsPaused      bool       `json:"isPaused"`
}

// PlayerCount is the fixed number of seats in a match.
const PlayerCount = 2

var ErrInvalidState = errors.New("invalid game state")

// Clone returns a deep copy so the caller may mutate it freely.
func (s GameState) Clone() GameState {
	out := s
	out.Marbles = slices.Clone(s.Marbles)
	out.Obstacles = slices.Clone(s.Obstacles)
	if s.Winner != nil {
		w := *s.Winner
		out.Winner = &w
	}
	return out
}

// AnyMoving reports whether at least one marble is still in motion.
func (s GameState) AnyMoving() bool {
	for _, m := range s.Marbles {
		if m.IsMoving {
			return true
		}
	}
	return false
}

// Validate rejects snapshots that would break the match invariants.
func (s GameState) Validate() error {
	if len(s.Marbles) != PlayerCount {
		return fmt.Errorf("%w: expected %d marbles, got %d", ErrInvalidState, PlayerCount, len(s.Marbles))
	}
	if s.CurrentPlayer < 0 || s.CurrentPlayer >= PlayerCount {
		return fmt.Errorf("%w: current player %d out of range", ErrInvalidState, s.CurrentPlayer)
	}
	if s.MapWidth <= 0 || s.MapHeight <= 0 {
		return fmt.Errorf("%w: map extent %.1fx%.1f", ErrInvalidState, s.MapWidth, s.MapHeight)
	}
	if s.Winner != nil && !s.GameOver {
		return fmt.Errorf("%w: winner set before game over", ErrInvalidState)
	}
	return nil
}
