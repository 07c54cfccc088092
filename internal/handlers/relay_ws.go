// internal/handlers/relay_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/neonmarble/internal/middleware"
	"github.com/jason-s-yu/neonmarble/internal/protocol"
	"github.com/jason-s-yu/neonmarble/internal/relay"
	"github.com/sirupsen/logrus"
)

// Options tune the websocket transport.
type Options struct {
	AllowedOrigins []string
	OutboxSize     int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
}

// DefaultOptions matches the config defaults.
func DefaultOptions() Options {
	return Options{
		AllowedOrigins: []string{"*"},
		OutboxSize:     32,
		PingInterval:   30 * time.Second,
		WriteTimeout:   5 * time.Second,
	}
}

// RelayWSHandler upgrades a request and feeds the socket into svc until it closes.
// Cancelling base closes every open socket with ServerShutdownError.
func RelayWSHandler(base context.Context, logger *logrus.Logger, svc *relay.Service, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{protocol.Subprotocol},
			OriginPatterns: opts.AllowedOrigins,
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != protocol.Subprotocol {
			c.Close(BadSubprotocolError, "client must speak the marble subprotocol")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		stop := context.AfterFunc(base, func() {
			c.Close(ServerShutdownError, "relay shutting down")
		})
		defer stop()

		conn := relay.NewConnection(r.RemoteAddr, opts.OutboxSize, cancel)
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, conn.ID.String())

		go writePump(ctx, c, conn, logger, opts)
		svc.Connect(ctx, conn)

		readErr := readPump(ctx, c, svc, conn, logger)

		// Cleanup runs on the reading goroutine, which owns the room membership.
		svc.Disconnect(context.Background(), conn)
		cancel()
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, conn.ID.String(), readErr)
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// readPump hands each text frame to the relay until the socket closes. It returns
// nil for a clean close.
func readPump(ctx context.Context, c *websocket.Conn, svc *relay.Service, conn *relay.Connection, logger *logrus.Logger) error {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway ||
				status == ServerShutdownError || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			logger.Debugf("conn %s: ignoring binary frame", conn.ID)
			continue
		}
		svc.HandleMessage(ctx, conn, msg)
	}
}

// writePump drains the connection outbox onto the socket and keeps it alive with pings.
func writePump(ctx context.Context, c *websocket.Conn, conn *relay.Connection, logger *logrus.Logger, opts Options) {
	ping := opts.PingInterval
	if ping <= 0 {
		ping = 30 * time.Second
	}
	ticker := time.NewTicker(ping)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-conn.OutChan:
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("conn %s: failed to marshal outgoing msg: %v", conn.ID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("conn %s: write failed: %v", conn.ID, err)
				conn.Cancel()
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("conn %s: ping failed: %v. Assuming disconnect.", conn.ID, err)
				conn.Cancel()
				return
			}
		}
	}
}
