// internal/game/match.go
package game

import (
	"errors"
	"math"

	"github.com/jason-s-yu/neonmarble/internal/models"
	"github.com/jason-s-yu/neonmarble/internal/physics"
)

// Phase is the turn state of a match.
type Phase int

const (
	PhaseAwaitingShoot Phase = iota
	PhaseSimulating
	PhaseGameOver
	PhasePaused
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingShoot:
		return "awaiting-shoot"
	case PhaseSimulating:
		return "simulating"
	case PhaseGameOver:
		return "game-over"
	case PhasePaused:
		return "paused"
	}
	return "unknown"
}

// Shot rejections. The messages are shown to players as-is.
var (
	ErrNotYourTurn    = errors.New("Chưa đến lượt của bạn!")
	ErrPaused         = errors.New("Game đang tạm dừng")
	ErrGameOver       = errors.New("Game đã kết thúc")
	ErrMarbleMoving   = errors.New("Bi vẫn đang lăn")
	ErrMarbleFinished = errors.New("Bi đã về đích")
	ErrEmptyShot      = errors.New("empty shot")
)

// Match owns the authoritative GameState of one peer and advances it tick by tick.
// It is driven from a single goroutine and is not safe for concurrent use.
type Match struct {
	state models.GameState
	phase Phase // underlying phase; the pause flag lives in state

	// OnEvent receives turn boundaries, finishes and restarts. May be nil.
	OnEvent func(ev Event)
}

// NewMatch starts a match from a freshly generated state.
func NewMatch(state models.GameState) *Match {
	m := &Match{}
	m.Load(state)
	return m
}

// State returns a copy of the current snapshot.
func (m *Match) State() models.GameState {
	return m.state.Clone()
}

// Phase reports the current phase; a paused match reports PhasePaused.
func (m *Match) Phase() Phase {
	if m.state.IsPaused && m.phase != PhaseGameOver {
		return PhasePaused
	}
	return m.phase
}

func (m *Match) CurrentPlayer() int {
	return m.state.CurrentPlayer
}

// Load replaces the state with an authoritative snapshot and derives the phase from it.
func (m *Match) Load(state models.GameState) {
	m.state = state.Clone()
	switch {
	case m.state.GameOver:
		m.phase = PhaseGameOver
	case m.state.AnyMoving():
		m.phase = PhaseSimulating
	default:
		m.phase = PhaseAwaitingShoot
	}
}

// Restart replaces the whole match, e.g. with a newly generated map.
func (m *Match) Restart(state models.GameState) {
	m.Load(state)
	m.emit(Event{Type: EventRestarted, Player: m.state.CurrentPlayer})
}

// CanShoot reports whether player may shoot right now.
func (m *Match) CanShoot(player int) error {
	switch {
	case m.state.GameOver:
		return ErrGameOver
	case m.state.IsPaused:
		return ErrPaused
	case player != m.state.CurrentPlayer || player < 0 || player >= len(m.state.Marbles):
		return ErrNotYourTurn
	case m.phase != PhaseAwaitingShoot:
		return ErrMarbleMoving
	}
	marble := m.state.Marbles[player]
	if marble.HasFinished {
		return ErrMarbleFinished
	}
	if marble.IsMoving {
		return ErrMarbleMoving
	}
	return nil
}

// Shoot launches player's marble. power is clamped to [0,1]; a zero direction or
// power is ignored with ErrEmptyShot.
func (m *Match) Shoot(player int, direction models.Vector2D, power float64) error {
	if err := m.CanShoot(player); err != nil {
		return err
	}
	dir, power, err := NormalizeShot(direction, power)
	if err != nil {
		return err
	}

	marble := &m.state.Marbles[player]
	marble.Velocity = dir.Scale(power * physics.ShootPowerMultiplier)
	marble.IsMoving = true
	m.state.TurnCount++
	m.phase = PhaseSimulating

	m.emit(Event{Type: EventShot, Player: player, Direction: dir, Power: power})
	return nil
}

// NormalizeShot returns the unit direction and clamped power of a shot, or
// ErrEmptyShot when either is zero.
func NormalizeShot(direction models.Vector2D, power float64) (models.Vector2D, float64, error) {
	power = math.Max(0, math.Min(power, 1))
	dir := direction.Normalize()
	if dir.IsZero() || power == 0 || math.IsNaN(power) {
		return models.Vector2D{}, 0, ErrEmptyShot
	}
	return dir, power, nil
}

// TogglePause flips the pause flag and returns the new value.
func (m *Match) TogglePause() (bool, error) {
	if m.state.GameOver {
		return false, ErrGameOver
	}
	m.state.IsPaused = !m.state.IsPaused
	if m.state.IsPaused {
		m.emit(Event{Type: EventPaused, Player: m.state.CurrentPlayer})
	} else {
		m.emit(Event{Type: EventResumed, Player: m.state.CurrentPlayer})
	}
	return m.state.IsPaused, nil
}

// Tick runs one simulation step. It does nothing unless marbles are in flight and
// the match is not paused.
func (m *Match) Tick() {
	if m.phase != PhaseSimulating || m.state.IsPaused {
		return
	}

	s := &m.state
	for i, marble := range s.Marbles {
		if marble.IsMoving {
			s.Marbles[i] = physics.Integrate(marble, s.MapWidth, s.MapHeight)
		}
	}

	before := make([]bool, len(s.Marbles))
	for i, marble := range s.Marbles {
		before[i] = marble.HasFinished
	}
	s.Marbles = physics.ResolveCollisions(s.Marbles, s.Obstacles, s.Goal)

	// Lowest index wins a same-tick finish.
	winner := -1
	for i, marble := range s.Marbles {
		if marble.HasFinished && !before[i] {
			m.emit(Event{Type: EventMarbleFinished, Player: i})
			if winner < 0 {
				winner = i
			}
		}
	}
	if winner >= 0 {
		s.Winner = &winner
		s.GameOver = true
		m.phase = PhaseGameOver
		m.emit(Event{Type: EventGameOver, Player: winner})
		return
	}

	if s.AnyMoving() {
		return
	}
	m.endTurn()
}

func (m *Match) endTurn() {
	s := &m.state
	n := len(s.Marbles)
	next := s.CurrentPlayer
	for step := 0; step < n; step++ {
		next = (next + 1) % n
		if !s.Marbles[next].HasFinished {
			break
		}
	}
	s.CurrentPlayer = next
	m.phase = PhaseAwaitingShoot
	m.emit(Event{Type: EventTurnEnd, Player: next})
}

func (m *Match) emit(ev Event) {
	if m.OnEvent != nil {
		m.OnEvent(ev)
	}
}
