// Package client is the player side of the relay connection: one websocket with a
// buffered writer, reply matching for create/join, and reconnect with seat rejoin.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/neonmarble/internal/models"
	"github.com/jason-s-yu/neonmarble/internal/protocol"
	"github.com/sirupsen/logrus"
)

var (
	ErrTimeout      = errors.New("timed out waiting for the relay")
	ErrClosed       = errors.New("client closed")
	ErrNotConnected = errors.New("not connected")
	ErrOutboxFull   = errors.New("outbox full")
)

const outboxSize = 64

// RelayError is a create or join refusal sent by the relay.
type RelayError struct {
	Code    string
	Message string
}

func (e *RelayError) Error() string { return e.Message }

// Seat is the room position the relay gave this client.
type Seat struct {
	RoomCode    string
	PlayerID    string
	PlayerIndex int
	HostName    string
	Token       string
	GameStarted bool
}

// Handlers receive client events. Both run on the reader goroutine, so they must not
// block; hand the value to the frame loop instead.
type Handlers struct {
	OnStatus  func(Status)
	OnMessage func(protocol.ServerMessage)
}

// Client talks to one relay. The zero value is not usable; call New.
type Client struct {
	URL          string
	DialTimeout  time.Duration
	ReplyTimeout time.Duration
	Backoff      func(attempt int) time.Duration
	MaxAttempts  int

	handlers Handlers
	logger   *logrus.Logger
	out      chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	conn    *websocket.Conn
	status  Status
	seat    *Seat
	pending map[string]chan protocol.ServerMessage
	closed  bool
}

func New(url string, logger *logrus.Logger, h Handlers) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		URL:          url,
		DialTimeout:  DialTimeout,
		ReplyTimeout: ReplyTimeout,
		Backoff:      BackoffDelay,
		MaxAttempts:  MaxReconnectAttempts,
		handlers:     h,
		logger:       logger,
		out:          make(chan []byte, outboxSize),
		ctx:          ctx,
		cancel:       cancel,
		pending:      make(map[string]chan protocol.ServerMessage),
	}
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Seat returns the current seat, or false when not in a room.
func (c *Client) Seat() (Seat, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seat == nil {
		return Seat{}, false
	}
	return *c.seat, true
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
	c.logger.WithField("status", s.String()).Debug("relay connection status")
	if c.handlers.OnStatus != nil {
		c.handlers.OnStatus(s)
	}
}

// Connect dials the relay. It is a no-op when already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.setStatus(Status{State: StateConnecting})
	conn, err := c.dial(ctx)
	if err != nil {
		c.setStatus(Status{State: StateDisconnected})
		return fmt.Errorf("connect %s: %w", c.URL, err)
	}
	if !c.start(conn) {
		return ErrClosed
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, c.DialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dctx, c.URL, &websocket.DialOptions{
		Subprotocols: []string{protocol.Subprotocol},
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(protocol.ReadLimit)
	return conn, nil
}

// start installs conn as the live socket, reports Connected and runs its pumps.
func (c *Client) start(conn *websocket.Conn) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
		return false
	}
	c.conn = conn
	c.mu.Unlock()
	c.setStatus(Status{State: StateConnected})

	sctx, scancel := context.WithCancel(c.ctx)
	go c.writeLoop(sctx, scancel, conn)
	go c.readLoop(sctx, scancel, conn)
	return true
}

func (c *Client) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.out:
			wctx, wcancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(wctx, websocket.MessageText, data)
			wcancel()
			if err != nil {
				c.logger.Warnf("relay write failed: %v", err)
				cancel()
				return
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			cancel()
			c.connectionLost(conn, err)
			return
		}
		msg, err := protocol.DecodeServer(data)
		if err != nil {
			c.logger.Debugf("dropping relay frame: %v", err)
			continue
		}
		c.route(msg)
	}
}

func replyKey(msgType string) string {
	switch msgType {
	case protocol.TypeRoomCreated, protocol.TypeCreateError:
		return protocol.TypeCreateRoom
	case protocol.TypeRoomJoined, protocol.TypeJoinError:
		return protocol.TypeJoinRoom
	}
	return ""
}

func (c *Client) route(msg protocol.ServerMessage) {
	c.mu.Lock()
	switch msg.Type {
	case protocol.TypeRoomCreated, protocol.TypeRoomJoined:
		seat := seatFrom(msg)
		c.seat = &seat
	case protocol.TypeGameStart:
		if c.seat != nil {
			c.seat.GameStarted = true
			if msg.Token != "" {
				c.seat.Token = msg.Token
			}
		}
	case protocol.TypeJoinError:
		c.seat = nil
	}
	var reply chan protocol.ServerMessage
	if key := replyKey(msg.Type); key != "" {
		reply = c.pending[key]
		delete(c.pending, key)
	}
	c.mu.Unlock()

	if reply != nil {
		reply <- msg
	}
	if c.handlers.OnMessage != nil {
		c.handlers.OnMessage(msg)
	}
}

func seatFrom(msg protocol.ServerMessage) Seat {
	s := Seat{
		RoomCode:    msg.RoomCode,
		PlayerID:    msg.PlayerID,
		HostName:    msg.HostName,
		Token:       msg.Token,
		GameStarted: msg.GameStarted,
	}
	if msg.PlayerIndex != nil {
		s.PlayerIndex = *msg.PlayerIndex
	}
	return s
}

// connectionLost runs on the reader of conn once it fails.
func (c *Client) connectionLost(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn || c.closed {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	inRoom := c.seat != nil && c.seat.Token != ""
	c.mu.Unlock()

	conn.Close(websocket.StatusGoingAway, "")
	c.logger.Warnf("relay connection lost: %v", err)
	if !inRoom {
		c.setStatus(Status{State: StateDisconnected})
		return
	}
	c.reconnect()
}

// reconnect redials with backoff and reclaims the seat with rejoin-room.
func (c *Client) reconnect() {
	for attempt := 1; attempt <= c.MaxAttempts; attempt++ {
		c.setStatus(Status{State: StateReconnecting, Attempt: attempt})

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.Backoff(attempt)):
		}

		conn, err := c.dial(c.ctx)
		if err != nil {
			c.logger.Warnf("reconnect attempt %d failed: %v", attempt, err)
			continue
		}

		c.mu.Lock()
		token := ""
		if c.seat != nil {
			token = c.seat.Token
		}
		c.mu.Unlock()

		data, _ := json.Marshal(map[string]interface{}{
			"type":  protocol.TypeRejoinRoom,
			"token": token,
		})
		wctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
		err = conn.Write(wctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			c.logger.Warnf("rejoin after reconnect failed: %v", err)
			conn.Close(websocket.StatusGoingAway, "")
			continue
		}

		if !c.start(conn) {
			return
		}
		c.logger.Infof("relay reconnected after %d attempt(s)", attempt)
		return
	}
	c.logger.Errorf("relay reconnect failed after %d attempts", c.MaxAttempts)
	c.setStatus(Status{State: StateDisconnected, Attempt: c.MaxAttempts, GaveUp: true})
}

// enqueue hands a message to the writer without blocking.
func (c *Client) enqueue(msg map[string]interface{}) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.out <- data:
		return nil
	default:
		return ErrOutboxFull
	}
}

// request sends msg and waits for the matching reply.
func (c *Client) request(ctx context.Context, msg map[string]interface{}) (protocol.ServerMessage, error) {
	key, _ := msg["type"].(string)
	ch := make(chan protocol.ServerMessage, 1)

	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return protocol.ServerMessage{}, ErrNotConnected
	}
	c.pending[key] = ch
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		if c.pending[key] == ch {
			delete(c.pending, key)
		}
		c.mu.Unlock()
	}

	if err := c.enqueue(msg); err != nil {
		forget()
		return protocol.ServerMessage{}, err
	}

	timer := time.NewTimer(c.ReplyTimeout)
	defer timer.Stop()
	select {
	case reply := <-ch:
		return reply, nil
	case <-timer.C:
		forget()
		return protocol.ServerMessage{}, ErrTimeout
	case <-ctx.Done():
		forget()
		return protocol.ServerMessage{}, ctx.Err()
	case <-c.ctx.Done():
		return protocol.ServerMessage{}, ErrClosed
	}
}

func (c *Client) seatReply(ctx context.Context, msg map[string]interface{}) (Seat, error) {
	reply, err := c.request(ctx, msg)
	if err != nil {
		return Seat{}, err
	}
	if !reply.Success {
		return Seat{}, &RelayError{Code: reply.Code, Message: reply.Error}
	}
	return seatFrom(reply), nil
}

// CreateRoom opens a room and returns the host seat.
func (c *Client) CreateRoom(ctx context.Context, name string) (Seat, error) {
	return c.seatReply(ctx, map[string]interface{}{
		"type":       protocol.TypeCreateRoom,
		"playerName": name,
	})
}

// JoinRoom takes a guest seat in room code. Relay refusals come back as *RelayError.
func (c *Client) JoinRoom(ctx context.Context, code, name string) (Seat, error) {
	return c.seatReply(ctx, map[string]interface{}{
		"type":       protocol.TypeJoinRoom,
		"roomCode":   code,
		"playerName": name,
	})
}

func (c *Client) SetReady() error {
	return c.enqueue(map[string]interface{}{"type": protocol.TypePlayerReady})
}

func (c *Client) SendShoot(direction models.Vector2D, power float64) error {
	return c.enqueue(map[string]interface{}{
		"type":      protocol.TypePlayerShoot,
		"direction": direction,
		"power":     power,
	})
}

func (c *Client) InitGameState(state models.GameState) error {
	return c.enqueue(map[string]interface{}{
		"type":      protocol.TypeInitGameState,
		"gameState": state,
	})
}

func (c *Client) SendGameState(state models.GameState, timestamp int64) error {
	return c.enqueue(map[string]interface{}{
		"type":      protocol.TypeGameStateUpdate,
		"gameState": state,
		"timestamp": timestamp,
	})
}

func (c *Client) RequestGameState() error {
	return c.enqueue(map[string]interface{}{"type": protocol.TypeRequestGameState})
}

func (c *Client) SendRestart(state models.GameState) error {
	return c.enqueue(map[string]interface{}{
		"type":      protocol.TypeRestartGame,
		"gameState": state,
	})
}

// Close shuts the socket and stops reconnecting.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "")
	}
	c.cancel()
	c.setStatus(Status{State: StateDisconnected})
	return err
}
