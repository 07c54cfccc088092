package client

import (
	"fmt"
	"time"
)

const (
	DialTimeout          = 5 * time.Second
	ReplyTimeout         = 5 * time.Second
	MaxReconnectAttempts = 5

	baseBackoff = time.Second
	maxBackoff  = 10 * time.Second
)

// BackoffDelay is the wait before reconnect attempt n (1-based): 2s, 4s, 8s, then 10s.
func BackoffDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return baseBackoff
	}
	if attempt >= 4 {
		return maxBackoff
	}
	return min(baseBackoff<<attempt, maxBackoff)
}

// ConnState is where the client is in its connection lifecycle.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}
	return fmt.Sprintf("ConnState(%d)", int(s))
}

// Status is reported on every state change. Attempt is set while reconnecting, and
// GaveUp marks a persistent disconnect after the last attempt failed.
type Status struct {
	State   ConnState
	Attempt int
	GaveUp  bool
}

func (s Status) String() string {
	switch {
	case s.GaveUp:
		return fmt.Sprintf("%s (gave up after %d attempts)", s.State, s.Attempt)
	case s.State == StateReconnecting:
		return fmt.Sprintf("%s (attempt %d)", s.State, s.Attempt)
	}
	return s.State.String()
}
