// Package netplay runs one peer of an online match. The host owns the physics and
// publishes snapshots; the guest only renders them and sends shot intents.
package netplay

import (
	"errors"
	"time"

	"github.com/jason-s-yu/neonmarble/internal/game"
	"github.com/jason-s-yu/neonmarble/internal/models"
	"github.com/jason-s-yu/neonmarble/internal/protocol"
	"github.com/jason-s-yu/neonmarble/internal/smoothing"
	"github.com/sirupsen/logrus"
)

// SnapshotEvery is how many simulating ticks pass between host snapshots.
const SnapshotEvery = 3

const inboxSize = 256

// PendingShotTimeout is how long a guest waits for the host to answer a shot before
// it may shoot again. Shot intents are best effort and can be dropped by the relay.
const PendingShotTimeout = 3 * time.Second

// ErrShotPending rejects a second guest shot before the host has answered the first.
var ErrShotPending = errors.New("shot already sent")

// Transport is the outbound side of the relay connection. client.Client implements it.
type Transport interface {
	SendShoot(direction models.Vector2D, power float64) error
	InitGameState(state models.GameState) error
	SendGameState(state models.GameState, timestamp int64) error
	RequestGameState() error
	SendRestart(state models.GameState) error
}

// Config describes the local peer.
type Config struct {
	LocalIndex    int
	Role          models.Role
	SnapshotEvery int
	Now           func() time.Time
}

// Session binds a match, a smoothing buffer and a transport. Network callbacks are
// queued with Deliver and applied on the next Frame, so all state is touched by the
// frame goroutine only.
type Session struct {
	match     *game.Match
	buffer    *smoothing.Buffer
	transport Transport
	logger    *logrus.Logger

	role          models.Role
	local         int
	snapshotEvery int
	now           func() time.Time

	inbox   chan func()
	done    chan struct{}
	ticks   int
	synced  bool      // guest has applied at least one host snapshot
	pending time.Time // when the unanswered guest shot was sent; zero if none

	// OnEvent receives match events. Guests get them derived from snapshots.
	OnEvent func(ev game.Event)
}

func NewSession(cfg Config, match *game.Match, transport Transport, logger *logrus.Logger) *Session {
	if cfg.SnapshotEvery <= 0 {
		cfg.SnapshotEvery = SnapshotEvery
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Session{
		match:         match,
		buffer:        smoothing.NewBuffer(),
		transport:     transport,
		logger:        logger,
		role:          cfg.Role,
		local:         cfg.LocalIndex,
		snapshotEvery: cfg.SnapshotEvery,
		now:           cfg.Now,
		inbox:         make(chan func(), inboxSize),
		done:          make(chan struct{}),
		synced:        cfg.Role.IsHost(),
	}
	match.OnEvent = s.onMatchEvent
	return s
}

func (s *Session) Role() models.Role { return s.role }

func (s *Session) LocalIndex() int { return s.local }

func (s *Session) Match() *game.Match { return s.match }

// Buffered is the number of snapshots waiting in the smoothing buffer.
func (s *Session) Buffered() int { return s.buffer.Len() }

// Synced reports whether the local match reflects the host's state.
func (s *Session) Synced() bool { return s.synced }

// IsMyTurn reports whether Shoot would be accepted now.
func (s *Session) IsMyTurn() bool {
	return s.synced && !s.shotPending() && s.match.CanShoot(s.local) == nil
}

// shotPending reports an unanswered guest shot, forgetting it once it is older
// than PendingShotTimeout.
func (s *Session) shotPending() bool {
	if s.pending.IsZero() {
		return false
	}
	if s.now().Sub(s.pending) >= PendingShotTimeout {
		s.log().Warn("host did not answer our shot; allowing another")
		s.pending = time.Time{}
		return false
	}
	return true
}

func (s *Session) log() *logrus.Entry {
	return s.logger.WithFields(logrus.Fields{"role": s.role.String(), "player": s.local})
}

// Start announces the opening state (host) or asks for it (guest).
func (s *Session) Start() error {
	if s.role.IsHost() {
		return s.transport.InitGameState(s.match.State())
	}
	return s.transport.RequestGameState()
}

// Stop unblocks pending Deliver calls. The session must not be used afterwards.
func (s *Session) Stop() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *Session) enqueue(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.done:
	}
}

// Deliver queues a relay message. Safe to call from any goroutine.
func (s *Session) Deliver(msg protocol.ServerMessage) {
	s.enqueue(func() { s.apply(msg) })
}

// ConnectionLost queues a transport drop. Buffered snapshots are discarded.
func (s *Session) ConnectionLost() {
	s.enqueue(func() {
		s.buffer.Clear()
		s.log().Warn("relay connection lost")
	})
}

// Frame drains queued network events and, on the host, runs one physics tick.
func (s *Session) Frame() {
	s.drain()
	if !s.role.IsHost() {
		return
	}
	if s.match.Phase() != game.PhaseSimulating {
		return
	}
	s.match.Tick()
	s.ticks++
	if s.match.Phase() == game.PhaseSimulating && s.ticks%s.snapshotEvery == 0 {
		s.publish()
	}
}

func (s *Session) drain() {
	for {
		select {
		case fn := <-s.inbox:
			fn()
		default:
			return
		}
	}
}

// View is the state to draw: the live match on the host, the smoothed snapshot
// stream on the guest.
func (s *Session) View() models.GameState {
	if !s.role.IsHost() {
		if st, ok := s.buffer.Sample(s.now()); ok {
			return st
		}
	}
	return s.match.State()
}

// Shoot fires the local marble. The host applies it at once; the guest checks its
// replica and forwards the intent.
func (s *Session) Shoot(direction models.Vector2D, power float64) error {
	if s.role.IsHost() {
		if err := s.match.Shoot(s.local, direction, power); err != nil {
			return err
		}
		s.ticks = 0
		s.publish()
		return nil
	}
	if s.shotPending() {
		return ErrShotPending
	}
	if err := s.match.CanShoot(s.local); err != nil {
		return err
	}
	dir, power, err := game.NormalizeShot(direction, power)
	if err != nil {
		return err
	}
	if err := s.transport.SendShoot(dir, power); err != nil {
		return err
	}
	s.pending = s.now()
	return nil
}

// Restart resets the match to state for both peers.
func (s *Session) Restart(state models.GameState) error {
	s.reset(state)
	return s.transport.SendRestart(state)
}

func (s *Session) reset(state models.GameState) {
	s.buffer.Clear()
	s.ticks = 0
	s.synced = true
	s.pending = time.Time{}
	s.match.Restart(state)
}

func (s *Session) publish() {
	if err := s.transport.SendGameState(s.match.State(), s.now().UnixMilli()); err != nil {
		s.log().Warnf("could not publish snapshot: %v", err)
	}
}

func (s *Session) onMatchEvent(ev game.Event) {
	if s.role.IsHost() && (ev.Type == game.EventTurnEnd || ev.Type == game.EventGameOver) {
		s.publish()
	}
	s.emit(ev)
}

func (s *Session) emit(ev game.Event) {
	if s.OnEvent != nil {
		s.OnEvent(ev)
	}
}

func (s *Session) apply(msg protocol.ServerMessage) {
	switch msg.Type {
	case protocol.TypeOpponentShoot:
		s.applyOpponentShot(msg)
	case protocol.TypeGameStateInit, protocol.TypeGameStateSync:
		s.applySnapshot(msg)
	case protocol.TypeGameStart:
		if err := s.Start(); err != nil {
			s.log().Warnf("could not start match: %v", err)
		}
	case protocol.TypeSendGameState, protocol.TypePlayerRejoined:
		if s.role.IsHost() {
			if err := s.transport.InitGameState(s.match.State()); err != nil {
				s.log().Warnf("could not send game state: %v", err)
			}
		}
	case protocol.TypeGameRestarted:
		state, err := protocol.DecodeState(msg.GameState)
		if err != nil {
			s.log().Warnf("dropping bad restart snapshot: %v", err)
			return
		}
		s.reset(state)
	case protocol.TypeBecameHost:
		s.role = models.RoleHost
		s.buffer.Clear()
		s.ticks = 0
		s.synced = true
		s.pending = time.Time{}
		s.match.Load(s.match.State())
		s.log().Info("took over host authority")
		s.publish()
	case protocol.TypePlayerDisconnected:
		s.buffer.Clear()
		s.log().Info("opponent disconnected")
	}
}

func (s *Session) applyOpponentShot(msg protocol.ServerMessage) {
	if !s.role.IsHost() {
		return
	}
	if msg.Direction == nil || msg.Power == nil {
		return
	}
	opponent := s.match.CurrentPlayer()
	if opponent == s.local {
		s.log().Debug("ignoring opponent shot on our turn")
		return
	}
	if err := s.match.Shoot(opponent, *msg.Direction, *msg.Power); err != nil {
		s.log().Debugf("rejecting opponent shot: %v", err)
		s.publish()
		return
	}
	s.ticks = 0
	s.publish()
}

func (s *Session) applySnapshot(msg protocol.ServerMessage) {
	if s.role.IsHost() {
		return
	}
	state, err := protocol.DecodeState(msg.GameState)
	if err != nil {
		s.log().Warnf("dropping bad snapshot: %v", err)
		return
	}
	prev := s.match.State()
	s.match.Load(state)
	s.buffer.Add(state, s.now())
	if !s.synced || state.TurnCount != prev.TurnCount || state.CurrentPlayer != s.local {
		s.pending = time.Time{}
	}
	s.synced = true
	for _, ev := range derivedEvents(prev, state) {
		s.emit(ev)
	}
}

// derivedEvents reconstructs the turn events a guest missed between two snapshots.
func derivedEvents(prev, next models.GameState) []game.Event {
	var out []game.Event
	if next.TurnCount > prev.TurnCount {
		out = append(out, game.Event{Type: game.EventShot, Player: prev.CurrentPlayer})
	}
	if next.GameOver && !prev.GameOver && next.Winner != nil {
		out = append(out, game.Event{Type: game.EventGameOver, Player: *next.Winner})
		return out
	}
	if next.CurrentPlayer != prev.CurrentPlayer && !next.AnyMoving() {
		out = append(out, game.Event{Type: game.EventTurnEnd, Player: next.CurrentPlayer})
	}
	return out
}
