package game

import "github.com/jason-s-yu/neonmarble/internal/models"

// EventType names a match event.
type EventType string

const (
	EventShot           EventType = "shot"            // a marble was launched
	EventTurnEnd        EventType = "turn_end"        // all marbles settled; Player moves next
	EventMarbleFinished EventType = "marble_finished" // Player's marble entered the goal
	EventGameOver       EventType = "game_over"       // Player won
	EventPaused         EventType = "paused"
	EventResumed        EventType = "resumed"
	EventRestarted      EventType = "restarted"
)

// Event is emitted through Match.OnEvent.
type Event struct {
	Type      EventType       `json:"type"`
	Player    int             `json:"player"`
	Direction models.Vector2D `json:"direction,omitzero"`
	Power     float64         `json:"power,omitempty"`
}
