package relay

import "errors"

// JoinError is a room admission failure reported to the requesting player only.
// Message is user-facing; Code is stable for clients to branch on.
type JoinError struct {
	Code    string
	Message string
}

func (e *JoinError) Error() string { return e.Message }

var (
	ErrRoomNotFound       = &JoinError{Code: "room_not_found", Message: "Không tìm thấy phòng"}
	ErrRoomFull           = &JoinError{Code: "room_full", Message: "Phòng đã đầy"}
	ErrGameAlreadyStarted = &JoinError{Code: "game_started", Message: "Game đã bắt đầu"}
	ErrSeatTaken          = &JoinError{Code: "seat_taken", Message: "Ghế đã có người"}
	ErrInvalidSeatToken   = &JoinError{Code: "invalid_token", Message: "Phiên chơi không hợp lệ"}
	ErrAlreadyInRoom      = &JoinError{Code: "already_in_room", Message: "Bạn đã ở trong phòng"}
)

var (
	ErrNotInRoom     = errors.New("connection is not in a room")
	ErrNotHost       = errors.New("only the host may do this")
	ErrEmptySnapshot = errors.New("message carries no game state")
	ErrBadShot       = errors.New("shoot message needs direction and power")
)
