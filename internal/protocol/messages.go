// internal/protocol/messages.go
package protocol

import (
	"encoding/json"
	"errors"

	"github.com/jason-s-yu/neonmarble/internal/models"
)

// Subprotocol is the websocket subprotocol both ends must speak.
const Subprotocol = "marble"

// ReadLimit bounds one frame; a full snapshot is a few kilobytes.
const ReadLimit = 1 << 20

// Client -> relay message types.
const (
	TypeCreateRoom       = "create-room"
	TypeJoinRoom         = "join-room"
	TypeRejoinRoom       = "rejoin-room"
	TypePlayerReady      = "player-ready"
	TypeInitGameState    = "init-game-state"
	TypeRequestGameState = "request-game-state"
	TypePlayerShoot      = "player-shoot"
	TypeGameStateUpdate  = "game-state-update"
	TypeRestartGame      = "restart-game"
)

// Relay -> client message types.
const (
	TypeConnected          = "connected"
	TypeRoomCreated        = "room-created"
	TypeCreateError        = "create-error"
	TypeRoomJoined         = "room-joined"
	TypeJoinError          = "join-error"
	TypePlayerJoined       = "player-joined"
	TypePlayerRejoined     = "player-rejoined"
	TypePlayerReadyUpdate  = "player-ready-update"
	TypeGameStart          = "game-start"
	TypeOpponentShoot      = "opponent-shoot"
	TypeGameStateInit      = "game-state-init"
	TypeSendGameState      = "send-game-state"
	TypeGameStateSync      = "game-state-sync"
	TypeGameRestarted      = "game-restarted"
	TypePlayerDisconnected = "player-disconnected"
	TypeBecameHost         = "became-host"
)

// ClientMessage is the union of every field a client may send. GameState is kept
// raw so the relay forwards snapshots verbatim.
type ClientMessage struct {
	Type       string           `json:"type"`
	PlayerName string           `json:"playerName,omitempty"`
	RoomCode   string           `json:"roomCode,omitempty"`
	Token      string           `json:"token,omitempty"`
	Direction  *models.Vector2D `json:"direction,omitempty"`
	Power      *float64         `json:"power,omitempty"`
	GameState  json.RawMessage  `json:"gameState,omitempty"`
	Timestamp  *int64           `json:"timestamp,omitempty"`
}

// ServerMessage is the union of every field the relay may send.
type ServerMessage struct {
	Type        string           `json:"type"`
	Success     bool             `json:"success,omitempty"`
	PlayerID    string           `json:"playerId,omitempty"`
	RoomCode    string           `json:"roomCode,omitempty"`
	PlayerIndex *int             `json:"playerIndex,omitempty"`
	PlayerName  string           `json:"playerName,omitempty"`
	HostName    string           `json:"hostName,omitempty"`
	Token       string           `json:"token,omitempty"`
	Ready       bool             `json:"ready,omitempty"`
	GameStarted bool             `json:"gameStarted,omitempty"`
	Error       string           `json:"error,omitempty"`
	Code        string           `json:"code,omitempty"`
	Direction   *models.Vector2D `json:"direction,omitempty"`
	Power       *float64         `json:"power,omitempty"`
	GameState   json.RawMessage  `json:"gameState,omitempty"`
	Timestamp   *int64           `json:"timestamp,omitempty"`
}

var ErrMissingType = errors.New("message has no type")

// DecodeClient parses one inbound frame.
func DecodeClient(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, err
	}
	if msg.Type == "" {
		return msg, ErrMissingType
	}
	return msg, nil
}

// DecodeServer parses one outbound frame on the client side.
func DecodeServer(data []byte) (ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, err
	}
	if msg.Type == "" {
		return msg, ErrMissingType
	}
	return msg, nil
}

// DecodeState unmarshals and validates a snapshot carried in a message.
func DecodeState(raw json.RawMessage) (models.GameState, error) {
	var s models.GameState
	if len(raw) == 0 {
		return s, models.ErrInvalidState
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, err
	}
	return s, s.Validate()
}
