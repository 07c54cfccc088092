// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the relay handler.
const (
	BadSubprotocolError websocket.StatusCode = 3000 // Client did not offer the marble subprotocol.
	ServerShutdownError websocket.StatusCode = 3004 // Relay is stopping; clients should reconnect elsewhere.
)
