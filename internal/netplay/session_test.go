package netplay

import (
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/neonmarble/internal/game"
	"github.com/jason-s-yu/neonmarble/internal/models"
	"github.com/jason-s-yu/neonmarble/internal/protocol"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shot struct {
	dir   models.Vector2D
	power float64
}

// fakeTransport records outbound traffic. With peer set it also plays the relay and
// forwards each message the way the server would.
type fakeTransport struct {
	mu       sync.Mutex
	shots    []shot
	inits    []models.GameState
	updates  []models.GameState
	requests int
	restarts []models.GameState

	peer *Session
}

func (f *fakeTransport) SendShoot(dir models.Vector2D, power float64) error {
	f.mu.Lock()
	f.shots = append(f.shots, shot{dir, power})
	f.mu.Unlock()
	if f.peer != nil {
		f.peer.Deliver(protocol.ServerMessage{Type: protocol.TypeOpponentShoot, Direction: &dir, Power: &power})
	}
	return nil
}

func (f *fakeTransport) InitGameState(state models.GameState) error {
	f.mu.Lock()
	f.inits = append(f.inits, state)
	f.mu.Unlock()
	f.forward(protocol.TypeGameStateInit, state)
	return nil
}

func (f *fakeTransport) SendGameState(state models.GameState, _ int64) error {
	f.mu.Lock()
	f.updates = append(f.updates, state)
	f.mu.Unlock()
	f.forward(protocol.TypeGameStateSync, state)
	return nil
}

func (f *fakeTransport) RequestGameState() error {
	f.mu.Lock()
	f.requests++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) SendRestart(state models.GameState) error {
	f.mu.Lock()
	f.restarts = append(f.restarts, state)
	f.mu.Unlock()
	f.forward(protocol.TypeGameRestarted, state)
	return nil
}

func (f *fakeTransport) forward(msgType string, state models.GameState) {
	if f.peer == nil {
		return
	}
	raw, _ := json.Marshal(state)
	f.peer.Deliver(protocol.ServerMessage{Type: msgType, GameState: raw})
}

func (f *fakeTransport) lastUpdate() models.GameState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[len(f.updates)-1]
}

func field() models.GameState {
	return models.GameState{
		Marbles: []models.Marble{
			{ID: 0, Position: models.Vec(100, 80), Radius: 15},
			{ID: 1, Position: models.Vec(200, 80), Radius: 15},
		},
		Obstacles: []models.Obstacle{},
		Goal:      models.Goal{Position: models.Vec(150, 1900), Radius: 35},
		MapWidth:  300,
		MapHeight: 2000,
	}
}

func snapshotMsg(t *testing.T, msgType string, state models.GameState) protocol.ServerMessage {
	t.Helper()
	raw, err := json.Marshal(state)
	require.NoError(t, err)
	return protocol.ServerMessage{Type: msgType, GameState: raw}
}

func newSession(t *testing.T, role models.Role, local int, tr Transport) *Session {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s := NewSession(Config{LocalIndex: local, Role: role}, game.NewMatch(field()), tr, logger)
	t.Cleanup(s.Stop)
	return s
}

func settle(t *testing.T, s *Session) {
	t.Helper()
	for i := 0; i < 5000 && s.Match().Phase() == game.PhaseSimulating; i++ {
		s.Frame()
	}
	require.NotEqual(t, game.PhaseSimulating, s.Match().Phase())
}

func TestHostShootPublishes(t *testing.T) {
	tr := &fakeTransport{}
	host := newSession(t, models.RoleHost, 0, tr)

	require.NoError(t, host.Shoot(models.Vec(0, 1), 1))
	require.Len(t, tr.updates, 1, "shot is published at once")
	assert.Equal(t, 1, tr.updates[0].TurnCount)

	for i := 0; i < SnapshotEvery; i++ {
		host.Frame()
	}
	assert.Len(t, tr.updates, 2)

	settle(t, host)
	final := tr.lastUpdate()
	assert.Equal(t, 1, final.CurrentPlayer, "turn end is published")
	assert.False(t, final.AnyMoving())
}

func TestGuestSendsIntentOnly(t *testing.T) {
	tr := &fakeTransport{}
	guest := newSession(t, models.RoleGuest, 1, tr)

	assert.ErrorIs(t, guest.Shoot(models.Vec(0, 1), 1), game.ErrNotYourTurn)
	assert.Empty(t, tr.shots)

	mine := field()
	mine.CurrentPlayer = 1
	guest.Deliver(snapshotMsg(t, protocol.TypeGameStateSync, mine))
	guest.Frame()
	assert.True(t, guest.IsMyTurn())

	require.NoError(t, guest.Shoot(models.Vec(0, 1), 0.5))
	require.Len(t, tr.shots, 1)
	assert.Equal(t, 0.5, tr.shots[0].power)
	assert.True(t, guest.Match().State().Marbles[1].Velocity.IsZero(), "guest never applies its own shot")
}

func TestGuestNeverSimulates(t *testing.T) {
	guest := newSession(t, models.RoleGuest, 1, &fakeTransport{})
	moving := field()
	moving.Marbles[0].Velocity = models.Vec(0, 10)
	moving.Marbles[0].IsMoving = true

	guest.Deliver(snapshotMsg(t, protocol.TypeGameStateSync, moving))
	for i := 0; i < 10; i++ {
		guest.Frame()
	}
	assert.Equal(t, moving.Marbles[0].Position, guest.Match().State().Marbles[0].Position)
}

func TestDeliverAppliesAtFrameBoundary(t *testing.T) {
	guest := newSession(t, models.RoleGuest, 1, &fakeTransport{})
	next := field()
	next.TurnCount = 7

	guest.Deliver(snapshotMsg(t, protocol.TypeGameStateInit, next))
	assert.Equal(t, 0, guest.Match().State().TurnCount)
	guest.Frame()
	assert.Equal(t, 7, guest.Match().State().TurnCount)
	assert.Equal(t, 1, guest.Buffered())
}

func TestHostIgnoresOpponentShotOnOwnTurn(t *testing.T) {
	tr := &fakeTransport{}
	host := newSession(t, models.RoleHost, 0, tr)
	dir, power := models.Vec(0, 1), 1.0

	host.Deliver(protocol.ServerMessage{Type: protocol.TypeOpponentShoot, Direction: &dir, Power: &power})
	host.Frame()
	assert.Equal(t, game.PhaseAwaitingShoot, host.Match().Phase())
	assert.Empty(t, tr.updates)
}

func TestLoopbackMatchConverges(t *testing.T) {
	hostTr, guestTr := &fakeTransport{}, &fakeTransport{}
	host := newSession(t, models.RoleHost, 0, hostTr)
	guest := newSession(t, models.RoleGuest, 1, guestTr)
	hostTr.peer, guestTr.peer = guest, host

	frames := func() {
		for i := 0; i < 5000; i++ {
			host.Frame()
			guest.Frame()
			if host.Match().Phase() != game.PhaseSimulating {
				break
			}
		}
		guest.Frame()
	}

	require.NoError(t, host.Shoot(models.Vec(0, 1), 1))
	frames()
	assert.Equal(t, host.Match().State().Marbles, guest.Match().State().Marbles)
	assert.Equal(t, 1, guest.Match().CurrentPlayer())

	require.NoError(t, guest.Shoot(models.Vec(0, 1), 0.8))
	host.Frame()
	assert.Equal(t, game.PhaseSimulating, host.Match().Phase(), "host applied the guest's shot")
	frames()
	assert.Equal(t, host.Match().State().Marbles, guest.Match().State().Marbles)
	assert.Equal(t, 0, guest.Match().CurrentPlayer())
	assert.Equal(t, 2, guest.Match().State().TurnCount)
}

func TestGuestDerivesTurnEvents(t *testing.T) {
	guest := newSession(t, models.RoleGuest, 1, &fakeTransport{})
	var got []game.EventType
	guest.OnEvent = func(ev game.Event) { got = append(got, ev.Type) }

	shot := field()
	shot.TurnCount = 1
	shot.Marbles[0].IsMoving = true
	shot.Marbles[0].Velocity = models.Vec(0, 5)
	guest.Deliver(snapshotMsg(t, protocol.TypeGameStateSync, shot))

	settled := field()
	settled.TurnCount = 1
	settled.CurrentPlayer = 1
	guest.Deliver(snapshotMsg(t, protocol.TypeGameStateSync, settled))
	guest.Frame()

	assert.Equal(t, []game.EventType{game.EventShot, game.EventTurnEnd}, got)
}

func TestBecameHostTakesOver(t *testing.T) {
	tr := &fakeTransport{}
	guest := newSession(t, models.RoleGuest, 1, tr)
	moving := field()
	moving.Marbles[0].Velocity = models.Vec(0, 10)
	moving.Marbles[0].IsMoving = true
	guest.Deliver(snapshotMsg(t, protocol.TypeGameStateSync, moving))
	guest.Deliver(protocol.ServerMessage{Type: protocol.TypeBecameHost})
	guest.Frame()

	assert.True(t, guest.Role().IsHost())
	assert.Equal(t, 0, guest.Buffered())
	require.Len(t, tr.updates, 1)

	before := guest.Match().State().Marbles[0].Position
	guest.Frame()
	assert.NotEqual(t, before, guest.Match().State().Marbles[0].Position, "new host simulates")
}

func TestRestartClearsBuffer(t *testing.T) {
	guest := newSession(t, models.RoleGuest, 1, &fakeTransport{})
	for i := 1; i <= 3; i++ {
		s := field()
		s.TurnCount = i
		guest.Deliver(snapshotMsg(t, protocol.TypeGameStateSync, s))
	}
	guest.Frame()
	require.Equal(t, 3, guest.Buffered())

	fresh := field()
	fresh.Marbles[0].Position = models.Vec(120, 80)
	guest.Deliver(snapshotMsg(t, protocol.TypeGameRestarted, fresh))
	guest.Frame()
	assert.Equal(t, 0, guest.Buffered())
	assert.Equal(t, fresh.Marbles, guest.View().Marbles)
}

func TestLocalRestartIsSent(t *testing.T) {
	tr := &fakeTransport{}
	host := newSession(t, models.RoleHost, 0, tr)
	require.NoError(t, host.Shoot(models.Vec(0, 1), 1))

	fresh := field()
	require.NoError(t, host.Restart(fresh))
	assert.Len(t, tr.restarts, 1)
	assert.Equal(t, game.PhaseAwaitingShoot, host.Match().Phase())
	assert.Equal(t, 0, host.Match().State().TurnCount)
}

func TestConnectionLostClearsBuffer(t *testing.T) {
	guest := newSession(t, models.RoleGuest, 1, &fakeTransport{})
	guest.Deliver(snapshotMsg(t, protocol.TypeGameStateSync, field()))
	guest.Frame()
	require.Equal(t, 1, guest.Buffered())

	guest.ConnectionLost()
	guest.Frame()
	assert.Equal(t, 0, guest.Buffered())
}

func TestGameStartKicksOff(t *testing.T) {
	hostTr, guestTr := &fakeTransport{}, &fakeTransport{}
	host := newSession(t, models.RoleHost, 0, hostTr)
	guest := newSession(t, models.RoleGuest, 1, guestTr)

	host.Deliver(protocol.ServerMessage{Type: protocol.TypeGameStart})
	guest.Deliver(protocol.ServerMessage{Type: protocol.TypeGameStart})
	host.Frame()
	guest.Frame()

	assert.Len(t, hostTr.inits, 1)
	assert.Equal(t, 1, guestTr.requests)

	host.Deliver(protocol.ServerMessage{Type: protocol.TypeSendGameState})
	host.Frame()
	assert.Len(t, hostTr.inits, 2)
}

func TestBadSnapshotIsDropped(t *testing.T) {
	guest := newSession(t, models.RoleGuest, 1, &fakeTransport{})
	guest.Deliver(protocol.ServerMessage{Type: protocol.TypeGameStateSync, GameState: json.RawMessage(`{"marbles":[]}`)})
	guest.Frame()
	assert.Equal(t, 0, guest.Buffered())
	assert.Len(t, guest.Match().State().Marbles, 2)
}

func TestViewSmoothsOnGuest(t *testing.T) {
	now := time.Unix(1000, 0)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	guest := NewSession(Config{LocalIndex: 1, Role: models.RoleGuest, Now: func() time.Time { return now }},
		game.NewMatch(field()), &fakeTransport{}, logger)
	defer guest.Stop()

	a := field()
	guest.Deliver(snapshotMsg(t, protocol.TypeGameStateSync, a))
	guest.Frame()

	now = now.Add(100 * time.Millisecond)
	b := field()
	b.Marbles[0].Position = models.Vec(100, 180)
	guest.Deliver(snapshotMsg(t, protocol.TypeGameStateSync, b))
	guest.Frame()

	now = now.Add(50 * time.Millisecond)
	assert.InDelta(t, 130, guest.View().Marbles[0].Position.Y, 1e-9)
	assert.Equal(t, 180.0, guest.Match().State().Marbles[0].Position.Y)
}

func TestGuestShotPendingUntilHostAnswers(t *testing.T) {
	tr := &fakeTransport{}
	guest := newSession(t, models.RoleGuest, 1, tr)
	assert.False(t, guest.Synced())
	assert.False(t, guest.IsMyTurn())

	mine := field()
	mine.CurrentPlayer = 1
	guest.Deliver(snapshotMsg(t, protocol.TypeGameStateSync, mine))
	guest.Frame()
	require.True(t, guest.IsMyTurn())

	require.NoError(t, guest.Shoot(models.Vec(0, 1), 1))
	assert.False(t, guest.IsMyTurn())
	assert.ErrorIs(t, guest.Shoot(models.Vec(0, 1), 1), ErrShotPending)
	assert.Len(t, tr.shots, 1)

	answered := mine
	answered.TurnCount = 1
	guest.Deliver(snapshotMsg(t, protocol.TypeGameStateSync, answered))
	guest.Frame()
	assert.NoError(t, guest.Shoot(models.Vec(0, 1), 1), "pending clears once the host applies the shot")
}

func TestGuestEmptyShotIsNotSent(t *testing.T) {
	hostTr, guestTr := &fakeTransport{}, &fakeTransport{}
	host := newSession(t, models.RoleHost, 0, hostTr)
	guest := newSession(t, models.RoleGuest, 1, guestTr)
	hostTr.peer, guestTr.peer = guest, host

	require.NoError(t, host.Shoot(models.Vec(0, 1), 1))
	settle(t, host)
	guest.Frame()
	require.True(t, guest.IsMyTurn())

	assert.ErrorIs(t, guest.Shoot(models.Vec(0, 0), 0.5), game.ErrEmptyShot)
	assert.ErrorIs(t, guest.Shoot(models.Vec(0, 1), 0), game.ErrEmptyShot)
	assert.Empty(t, guestTr.shots)
	assert.True(t, guest.IsMyTurn(), "a rejected shot leaves the turn open")

	require.NoError(t, guest.Shoot(models.Vec(0, 1), 1))
	host.Frame()
	assert.Equal(t, game.PhaseSimulating, host.Match().Phase())
}

func TestGuestPendingShotExpires(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	tr := &fakeTransport{} // no peer: every shot is lost
	guest := NewSession(Config{LocalIndex: 1, Role: models.RoleGuest, Now: clock}, game.NewMatch(field()), tr, logger)
	t.Cleanup(guest.Stop)

	mine := field()
	mine.CurrentPlayer = 1
	guest.Deliver(snapshotMsg(t, protocol.TypeGameStateSync, mine))
	guest.Frame()
	require.NoError(t, guest.Shoot(models.Vec(0, 1), 1))

	now = now.Add(PendingShotTimeout - time.Millisecond)
	assert.False(t, guest.IsMyTurn())
	assert.ErrorIs(t, guest.Shoot(models.Vec(0, 1), 1), ErrShotPending)

	now = now.Add(time.Millisecond)
	assert.True(t, guest.IsMyTurn())
	require.NoError(t, guest.Shoot(models.Vec(0, 1), 1))
	assert.Len(t, tr.shots, 2)
}

func TestHostPublishesWhenRejectingOpponentShot(t *testing.T) {
	tr := &fakeTransport{}
	host := newSession(t, models.RoleHost, 0, tr)
	theirs := field()
	theirs.CurrentPlayer = 1
	host.Match().Load(theirs)

	dir, power := models.Vec(0, 0), 1.0
	host.Deliver(protocol.ServerMessage{Type: protocol.TypeOpponentShoot, Direction: &dir, Power: &power})
	host.Frame()

	assert.Equal(t, game.PhaseAwaitingShoot, host.Match().Phase())
	require.Len(t, tr.updates, 1, "the guest is resynced")
	assert.Equal(t, 1, tr.updates[0].CurrentPlayer)
}
