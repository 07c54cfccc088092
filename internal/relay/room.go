// internal/relay/room.go
package relay

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/neonmarble/internal/models"
)

// Connection is one live client socket. Its room membership is only touched by the
// goroutine that reads the socket.
type Connection struct {
	ID      uuid.UUID
	Remote  string
	Cancel  func()
	OutChan chan map[string]interface{}

	room   *Room
	player *Player
}

// NewConnection returns a connection with a bounded outbox.
func NewConnection(remote string, outbox int, cancel func()) *Connection {
	id, _ := uuid.NewV7()
	return &Connection{
		ID:      id,
		Remote:  remote,
		Cancel:  cancel,
		OutChan: make(chan map[string]interface{}, outbox),
	}
}

// Write queues msg without blocking. It reports false when the outbox is full.
func (c *Connection) Write(msg map[string]interface{}) bool {
	select {
	case c.OutChan <- msg:
		return true
	default:
		return false
	}
}

// Room returns the room the connection currently sits in, or nil.
func (c *Connection) Room() *Room { return c.room }

// Player is one seat in a room.
type Player struct {
	ID          uuid.UUID
	Name        string
	PlayerIndex int
	Ready       bool
	Role        models.Role
	Conn        *Connection
}

// Room pairs up to two players. All fields are guarded by Mu.
type Room struct {
	Code        string
	Players     []*Player
	HostID      uuid.UUID
	GameStarted bool
	CreatedAt   time.Time

	closed bool // set once the last player left; the room is unusable after that

	Mu sync.Mutex
}

func newRoom(code string, host *Player) *Room {
	return &Room{
		Code:      code,
		Players:   []*Player{host},
		HostID:    host.ID,
		CreatedAt: time.Now(),
	}
}

// freeIndexUnsafe returns the lowest seat index not in use, or -1.
func (r *Room) freeIndexUnsafe() int {
	taken := make([]bool, models.PlayerCount)
	for _, p := range r.Players {
		if p.PlayerIndex >= 0 && p.PlayerIndex < len(taken) {
			taken[p.PlayerIndex] = true
		}
	}
	for i, t := range taken {
		if !t {
			return i
		}
	}
	return -1
}

func (r *Room) seatTakenUnsafe(idx int) bool {
	for _, p := range r.Players {
		if p.PlayerIndex == idx {
			return true
		}
	}
	return false
}

func (r *Room) addPlayerUnsafe(p *Player) {
	r.Players = append(r.Players, p)
	sort.Slice(r.Players, func(i, j int) bool {
		return r.Players[i].PlayerIndex < r.Players[j].PlayerIndex
	})
}

func (r *Room) removePlayerUnsafe(p *Player) bool {
	for i, cur := range r.Players {
		if cur == p {
			r.Players = append(r.Players[:i], r.Players[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Room) hostUnsafe() *Player {
	for _, p := range r.Players {
		if p.ID == r.HostID {
			return p
		}
	}
	return nil
}

func (r *Room) allReadyUnsafe() bool {
	if len(r.Players) < models.PlayerCount {
		return false
	}
	for _, p := range r.Players {
		if !p.Ready {
			return false
		}
	}
	return true
}

// RoomInfo is a point-in-time view of a room for the /rooms endpoint.
type RoomInfo struct {
	Code        string    `json:"roomCode"`
	Players     []string  `json:"players"`
	GameStarted bool      `json:"gameStarted"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Info snapshots the room under its lock.
func (r *Room) Info() RoomInfo {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	names := make([]string, 0, len(r.Players))
	for _, p := range r.Players {
		names = append(names, p.Name)
	}
	return RoomInfo{Code: r.Code, Players: names, GameStarted: r.GameStarted, CreatedAt: r.CreatedAt}
}
