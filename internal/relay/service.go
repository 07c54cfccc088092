// internal/relay/service.go
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/neonmarble/internal/auth"
	"github.com/jason-s-yu/neonmarble/internal/models"
	"github.com/jason-s-yu/neonmarble/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Service pairs clients into rooms and relays match traffic between them.
// Handlers for one room run one at a time under Room.Mu; different rooms
// proceed independently.
type Service struct {
	Rooms     *RoomStore
	Snapshots SnapshotStore
	Seats     *auth.SeatIssuer
	Metrics   *Metrics // nil disables metrics

	// NewCode draws candidate room codes. Defaults to GenerateRoomCode.
	NewCode func() string
	// StoreTimeout bounds each snapshot store call.
	StoreTimeout time.Duration

	logger *logrus.Logger
}

// JoinResult describes the seat a connection obtained.
type JoinResult struct {
	RoomCode    string
	PlayerID    uuid.UUID
	PlayerIndex int
	HostName    string
	Token       string
	GameStarted bool
}

// NewService wires a relay with an in-memory snapshot store.
func NewService(logger *logrus.Logger, rooms *RoomStore, seats *auth.SeatIssuer) *Service {
	return &Service{
		Rooms:        rooms,
		Snapshots:    NewMemorySnapshots(),
		Seats:        seats,
		NewCode:      GenerateRoomCode,
		StoreTimeout: 2 * time.Second,
		logger:       logger,
	}
}

func defaultName(name string, idx int) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Sprintf("Người chơi %d", idx+1)
	}
	return name
}

// log builds an entry for conn. Only conn's own goroutine may call it, since it reads
// conn.player.
func (s *Service) log(room *Room, conn *Connection) *logrus.Entry {
	fields := logrus.Fields{"conn": conn.ID}
	if room != nil {
		fields["room"] = room.Code
	}
	if conn.player != nil {
		fields["player"] = conn.player.PlayerIndex
	}
	return s.logger.WithFields(fields)
}

func (s *Service) send(ctx context.Context, conn *Connection, msg map[string]interface{}) {
	ok := conn.Write(msg)
	msgType, _ := msg["type"].(string)
	s.Metrics.delivered(ctx, msgType, ok)
	if !ok {
		s.logger.WithFields(logrus.Fields{"conn": conn.ID, "type": msgType}).Warn("outbox full, message dropped")
	}
}

// broadcastUnsafe sends msg to every player except skip. Assumes room.Mu is held.
func (s *Service) broadcastUnsafe(ctx context.Context, room *Room, skip *Player, msg map[string]interface{}) {
	for _, p := range room.Players {
		if p != skip {
			s.send(ctx, p.Conn, msg)
		}
	}
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.StoreTimeout)
}

// Connect greets a fresh connection with its id.
func (s *Service) Connect(ctx context.Context, conn *Connection) {
	s.send(ctx, conn, map[string]interface{}{
		"type":     protocol.TypeConnected,
		"playerId": conn.ID.String(),
	})
}

// CreateRoom opens a room with conn as player 0 and host.
func (s *Service) CreateRoom(ctx context.Context, conn *Connection, name string) (JoinResult, error) {
	if conn.room != nil {
		s.send(ctx, conn, joinErrorMsg(protocol.TypeCreateError, ErrAlreadyInRoom))
		return JoinResult{}, ErrAlreadyInRoom
	}

	player := &Player{
		ID:          conn.ID,
		Name:        defaultName(name, 0),
		PlayerIndex: 0,
		Role:        models.RoleHost,
		Conn:        conn,
	}
	room := s.Rooms.Create(s.NewCode, func(code string) *Room {
		return newRoom(code, player)
	})
	conn.room, conn.player = room, player

	token, err := s.Seats.Issue(player.ID, room.Code, player.PlayerIndex, player.Name)
	if err != nil {
		s.log(room, conn).Warnf("could not sign seat token: %v", err)
	}

	res := JoinResult{RoomCode: room.Code, PlayerID: player.ID, PlayerIndex: 0, HostName: player.Name, Token: token}
	s.send(ctx, conn, map[string]interface{}{
		"type":        protocol.TypeRoomCreated,
		"success":     true,
		"roomCode":    room.Code,
		"playerIndex": 0,
		"playerId":    player.ID.String(),
		"token":       token,
	})
	s.Metrics.roomCreated(ctx)
	s.log(room, conn).Infof("room created by %s", player.Name)
	return res, nil
}

// JoinRoom seats conn in an existing room as a guest.
func (s *Service) JoinRoom(ctx context.Context, conn *Connection, code, name string) (JoinResult, error) {
	res, err := s.joinRoom(ctx, conn, code, name)
	if err != nil {
		s.rejectJoin(ctx, conn, err)
	}
	return res, err
}

func (s *Service) joinRoom(ctx context.Context, conn *Connection, code, name string) (JoinResult, error) {
	if conn.room != nil {
		return JoinResult{}, ErrAlreadyInRoom
	}
	room, ok := s.Rooms.Get(code)
	if !ok {
		return JoinResult{}, ErrRoomNotFound
	}

	room.Mu.Lock()
	defer room.Mu.Unlock()

	switch {
	case room.closed:
		return JoinResult{}, ErrRoomNotFound
	case len(room.Players) >= models.PlayerCount:
		return JoinResult{}, ErrRoomFull
	case room.GameStarted:
		return JoinResult{}, ErrGameAlreadyStarted
	}

	idx := room.freeIndexUnsafe()
	player := &Player{
		ID:          conn.ID,
		Name:        defaultName(name, idx),
		PlayerIndex: idx,
		Role:        models.RoleGuest,
		Conn:        conn,
	}
	room.addPlayerUnsafe(player)
	conn.room, conn.player = room, player

	host := room.hostUnsafe()
	res := s.seatResultUnsafe(room, conn, player, host)

	s.broadcastUnsafe(ctx, room, player, map[string]interface{}{
		"type":        protocol.TypePlayerJoined,
		"playerName":  player.Name,
		"playerIndex": player.PlayerIndex,
	})
	s.send(ctx, conn, joinedMsg(res))
	s.log(room, conn).Infof("%s joined", player.Name)
	return res, nil
}

// RejoinRoom gives a reconnecting client its old seat back, even mid-match.
func (s *Service) RejoinRoom(ctx context.Context, conn *Connection, token string) (JoinResult, error) {
	res, err := s.rejoinRoom(ctx, conn, token)
	if err != nil {
		s.rejectJoin(ctx, conn, err)
	}
	return res, err
}

func (s *Service) rejoinRoom(ctx context.Context, conn *Connection, token string) (JoinResult, error) {
	if conn.room != nil {
		return JoinResult{}, ErrAlreadyInRoom
	}
	claims, err := s.Seats.Verify(token)
	if err != nil {
		return JoinResult{}, ErrInvalidSeatToken
	}
	playerID, _ := claims.PlayerID()

	room, ok := s.Rooms.Get(claims.RoomCode)
	if !ok {
		return JoinResult{}, ErrRoomNotFound
	}

	room.Mu.Lock()
	defer room.Mu.Unlock()

	switch {
	case room.closed:
		return JoinResult{}, ErrRoomNotFound
	case claims.PlayerIndex < 0 || claims.PlayerIndex >= models.PlayerCount:
		return JoinResult{}, ErrInvalidSeatToken
	case len(room.Players) >= models.PlayerCount || room.seatTakenUnsafe(claims.PlayerIndex):
		return JoinResult{}, ErrSeatTaken
	}

	player := &Player{
		ID:          playerID,
		Name:        defaultName(claims.PlayerName, claims.PlayerIndex),
		PlayerIndex: claims.PlayerIndex,
		Ready:       room.GameStarted,
		Role:        models.RoleGuest,
		Conn:        conn,
	}
	room.addPlayerUnsafe(player)
	conn.room, conn.player = room, player

	res := s.seatResultUnsafe(room, conn, player, room.hostUnsafe())
	s.broadcastUnsafe(ctx, room, player, map[string]interface{}{
		"type":        protocol.TypePlayerRejoined,
		"playerName":  player.Name,
		"playerIndex": player.PlayerIndex,
	})
	s.send(ctx, conn, joinedMsg(res))

	if snap, ok := s.loadSnapshot(ctx, room, conn); ok {
		s.send(ctx, conn, map[string]interface{}{
			"type":      protocol.TypeGameStateInit,
			"gameState": json.RawMessage(snap),
		})
	}
	s.log(room, conn).Infof("%s rejoined", player.Name)
	return res, nil
}

func (s *Service) seatResultUnsafe(room *Room, conn *Connection, player, host *Player) JoinResult {
	token, err := s.Seats.Issue(player.ID, room.Code, player.PlayerIndex, player.Name)
	if err != nil {
		s.log(room, conn).Warnf("could not sign seat token: %v", err)
	}
	res := JoinResult{
		RoomCode:    room.Code,
		PlayerID:    player.ID,
		PlayerIndex: player.PlayerIndex,
		Token:       token,
		GameStarted: room.GameStarted,
	}
	if host != nil {
		res.HostName = host.Name
	}
	return res
}

func (s *Service) rejectJoin(ctx context.Context, conn *Connection, err error) {
	var je *JoinError
	if !errors.As(err, &je) {
		je = &JoinError{Code: "internal", Message: err.Error()}
	}
	s.Metrics.joinRejected(ctx, je.Code)
	s.send(ctx, conn, joinErrorMsg(protocol.TypeJoinError, je))
	s.logger.WithFields(logrus.Fields{"conn": conn.ID, "reason": je.Code}).Info("join rejected")
}

func joinedMsg(res JoinResult) map[string]interface{} {
	return map[string]interface{}{
		"type":        protocol.TypeRoomJoined,
		"success":     true,
		"roomCode":    res.RoomCode,
		"playerIndex": res.PlayerIndex,
		"hostName":    res.HostName,
		"playerId":    res.PlayerID.String(),
		"token":       res.Token,
		"gameStarted": res.GameStarted,
	}
}

func joinErrorMsg(msgType string, je *JoinError) map[string]interface{} {
	return map[string]interface{}{
		"type":    msgType,
		"success": false,
		"error":   je.Message,
		"code":    je.Code,
	}
}

// MarkReady flags the caller ready. The first time both seats are ready the room
// starts and every player receives game-start with a fresh seat token.
func (s *Service) MarkReady(ctx context.Context, conn *Connection) error {
	room, player := conn.room, conn.player
	if room == nil {
		return ErrNotInRoom
	}
	room.Mu.Lock()
	defer room.Mu.Unlock()

	player.Ready = true
	s.broadcastUnsafe(ctx, room, nil, map[string]interface{}{
		"type":        protocol.TypePlayerReadyUpdate,
		"playerIndex": player.PlayerIndex,
		"ready":       true,
	})

	if !room.GameStarted && room.allReadyUnsafe() {
		room.GameStarted = true
		for _, p := range room.Players {
			msg := map[string]interface{}{"type": protocol.TypeGameStart}
			if token, err := s.Seats.Issue(p.ID, room.Code, p.PlayerIndex, p.Name); err == nil {
				msg["token"] = token
			} else {
				s.log(room, conn).Warnf("could not refresh seat token: %v", err)
			}
			s.send(ctx, p.Conn, msg)
		}
		s.log(room, conn).Info("match started")
	}
	return nil
}

// InitGameState stores the host's starting snapshot and hands it to the guest.
func (s *Service) InitGameState(ctx context.Context, conn *Connection, state json.RawMessage) error {
	return s.hostSnapshot(ctx, conn, state, func(room *Room) {
		s.broadcastUnsafe(ctx, room, conn.player, map[string]interface{}{
			"type":      protocol.TypeGameStateInit,
			"gameState": state,
		})
	})
}

// UpdateGameState stores a host snapshot and forwards it to the guest.
func (s *Service) UpdateGameState(ctx context.Context, conn *Connection, state json.RawMessage, timestamp *int64) error {
	return s.hostSnapshot(ctx, conn, state, func(room *Room) {
		msg := map[string]interface{}{
			"type":      protocol.TypeGameStateSync,
			"gameState": state,
		}
		if timestamp != nil {
			msg["timestamp"] = *timestamp
		}
		s.broadcastUnsafe(ctx, room, conn.player, msg)
	})
}

func (s *Service) hostSnapshot(ctx context.Context, conn *Connection, state json.RawMessage, relay func(room *Room)) error {
	room, player := conn.room, conn.player
	if room == nil {
		return ErrNotInRoom
	}
	if isEmptyJSON(state) {
		return ErrEmptySnapshot
	}
	room.Mu.Lock()
	defer room.Mu.Unlock()

	if !player.Role.IsHost() {
		s.log(room, conn).Debug("ignoring snapshot from guest")
		return ErrNotHost
	}
	s.saveSnapshot(ctx, room, conn, state)
	relay(room)
	return nil
}

// RequestGameState answers with the cached snapshot, or asks the host for one.
func (s *Service) RequestGameState(ctx context.Context, conn *Connection) error {
	room := conn.room
	if room == nil {
		return ErrNotInRoom
	}
	room.Mu.Lock()
	defer room.Mu.Unlock()

	if snap, ok := s.loadSnapshot(ctx, room, conn); ok {
		s.send(ctx, conn, map[string]interface{}{
			"type":      protocol.TypeGameStateInit,
			"gameState": json.RawMessage(snap),
		})
		return nil
	}
	if host := room.hostUnsafe(); host != nil && host != conn.player {
		s.send(ctx, host.Conn, map[string]interface{}{"type": protocol.TypeSendGameState})
	}
	return nil
}

// RelayShoot forwards a shot to the opponent unchanged.
func (s *Service) RelayShoot(ctx context.Context, conn *Connection, direction models.Vector2D, power float64) error {
	room := conn.room
	if room == nil {
		return ErrNotInRoom
	}
	room.Mu.Lock()
	defer room.Mu.Unlock()

	s.broadcastUnsafe(ctx, room, conn.player, map[string]interface{}{
		"type":      protocol.TypeOpponentShoot,
		"direction": direction,
		"power":     power,
	})
	return nil
}

// RestartGame replaces the room snapshot and broadcasts it to everyone, sender included.
func (s *Service) RestartGame(ctx context.Context, conn *Connection, state json.RawMessage) error {
	room := conn.room
	if room == nil {
		return ErrNotInRoom
	}
	if isEmptyJSON(state) {
		return ErrEmptySnapshot
	}
	room.Mu.Lock()
	defer room.Mu.Unlock()

	s.saveSnapshot(ctx, room, conn, state)
	s.broadcastUnsafe(ctx, room, nil, map[string]interface{}{
		"type":      protocol.TypeGameRestarted,
		"gameState": state,
	})
	s.log(room, conn).Info("match restarted")
	return nil
}

// Disconnect removes conn from its room. The survivor is told, inherits host
// authority if needed, and an empty room is destroyed.
func (s *Service) Disconnect(ctx context.Context, conn *Connection) {
	room, player := conn.room, conn.player
	if room == nil {
		return
	}
	conn.room, conn.player = nil, nil

	room.Mu.Lock()
	if !room.removePlayerUnsafe(player) {
		room.Mu.Unlock()
		return
	}
	s.broadcastUnsafe(ctx, room, nil, map[string]interface{}{
		"type":        protocol.TypePlayerDisconnected,
		"playerIndex": player.PlayerIndex,
	})

	empty := len(room.Players) == 0
	if empty {
		room.closed = true
	} else if room.HostID == player.ID {
		next := room.Players[0]
		next.Role = models.RoleHost
		room.HostID = next.ID
		s.send(ctx, next.Conn, map[string]interface{}{"type": protocol.TypeBecameHost})
		s.logger.WithFields(logrus.Fields{
			"conn":   next.Conn.ID,
			"room":   room.Code,
			"player": next.PlayerIndex,
		}).Infof("host authority moved to %s", next.Name)
	}
	room.Mu.Unlock()

	entry := s.logger.WithFields(logrus.Fields{"room": room.Code, "player": player.PlayerIndex})
	entry.Infof("%s left", player.Name)
	if empty {
		s.Rooms.Delete(room)
		sctx, cancel := s.storeCtx(ctx)
		if err := s.Snapshots.Delete(sctx, room.Code); err != nil {
			entry.Warnf("could not drop snapshot: %v", err)
		}
		cancel()
		s.Metrics.roomDestroyed(ctx)
		entry.Info("room destroyed")
	}
}

func (s *Service) saveSnapshot(ctx context.Context, room *Room, conn *Connection, state json.RawMessage) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.Snapshots.Save(sctx, room.Code, state); err != nil {
		s.log(room, conn).Warnf("could not store snapshot: %v", err)
	}
}

func (s *Service) loadSnapshot(ctx context.Context, room *Room, conn *Connection) ([]byte, bool) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	snap, ok, err := s.Snapshots.Load(sctx, room.Code)
	if err != nil {
		s.log(room, conn).Warnf("could not load snapshot: %v", err)
		return nil, false
	}
	return snap, ok
}

func isEmptyJSON(raw json.RawMessage) bool {
	t := strings.TrimSpace(string(raw))
	return t == "" || t == "null"
}
