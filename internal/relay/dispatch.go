package relay

import (
	"context"

	"github.com/jason-s-yu/neonmarble/internal/protocol"
)

// HandleMessage decodes one client frame and routes it. Malformed frames and
// messages the caller may not send are dropped; only HandleMessage's logs see them.
func (s *Service) HandleMessage(ctx context.Context, conn *Connection, data []byte) {
	msg, err := protocol.DecodeClient(data)
	if err != nil {
		s.log(conn.room, conn).Debugf("dropping malformed message: %v", err)
		return
	}

	switch msg.Type {
	case protocol.TypeCreateRoom:
		_, err = s.CreateRoom(ctx, conn, msg.PlayerName)
	case protocol.TypeJoinRoom:
		_, err = s.JoinRoom(ctx, conn, msg.RoomCode, msg.PlayerName)
	case protocol.TypeRejoinRoom:
		_, err = s.RejoinRoom(ctx, conn, msg.Token)
	case protocol.TypePlayerReady:
		err = s.MarkReady(ctx, conn)
	case protocol.TypeInitGameState:
		err = s.InitGameState(ctx, conn, msg.GameState)
	case protocol.TypeRequestGameState:
		err = s.RequestGameState(ctx, conn)
	case protocol.TypePlayerShoot:
		if msg.Direction == nil || msg.Power == nil {
			err = ErrBadShot
			break
		}
		err = s.RelayShoot(ctx, conn, *msg.Direction, *msg.Power)
	case protocol.TypeGameStateUpdate:
		err = s.UpdateGameState(ctx, conn, msg.GameState, msg.Timestamp)
	case protocol.TypeRestartGame:
		err = s.RestartGame(ctx, conn, msg.GameState)
	default:
		s.log(conn.room, conn).Debugf("dropping unknown message type %q", msg.Type)
		return
	}

	if err != nil {
		s.log(conn.room, conn).Debugf("%s: %v", msg.Type, err)
	}
}
