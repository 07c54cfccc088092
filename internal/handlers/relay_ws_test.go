package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/neonmarble/internal/auth"
	"github.com/jason-s-yu/neonmarble/internal/protocol"
	"github.com/jason-s-yu/neonmarble/internal/relay"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRelay struct {
	srv   *httptest.Server
	svc   *relay.Service
	stop  context.CancelFunc
	wsURL string
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	seats, err := auth.NewSeatIssuer(time.Minute)
	require.NoError(t, err)
	rooms := relay.NewRoomStore()
	svc := relay.NewService(logger, rooms, seats)

	base, stop := context.WithCancel(context.Background())
	mux := NewMux(logger, rooms, RelayWSHandler(base, logger, svc, DefaultOptions()))
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		stop()
		srv.Close()
	})
	return &testRelay{srv: srv, svc: svc, stop: stop, wsURL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"}
}

func dial(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{Subprotocols: []string{protocol.Subprotocol}})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func send(t *testing.T, ctx context.Context, c *websocket.Conn, msg map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, c.Write(ctx, websocket.MessageText, data))
}

// expect reads frames until one of msgType arrives.
func expect(t *testing.T, ctx context.Context, c *websocket.Conn, msgType string) map[string]interface{} {
	t.Helper()
	for {
		_, data, err := c.Read(ctx)
		require.NoError(t, err, "waiting for %s", msgType)
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg["type"] == msgType {
			return msg
		}
	}
}

func TestRelayOverWebsocket(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r := newTestRelay(t)

	host := dial(t, ctx, r.wsURL)
	hello := expect(t, ctx, host, "connected")
	assert.NotEmpty(t, hello["playerId"])

	send(t, ctx, host, map[string]interface{}{"type": "create-room", "playerName": "Alice"})
	created := expect(t, ctx, host, "room-created")
	code, _ := created["roomCode"].(string)
	require.Len(t, code, relay.CodeLength)

	guest := dial(t, ctx, r.wsURL)
	send(t, ctx, guest, map[string]interface{}{"type": "join-room", "roomCode": strings.ToLower(code), "playerName": "Bob"})
	joined := expect(t, ctx, guest, "room-joined")
	assert.Equal(t, float64(1), joined["playerIndex"])
	assert.Equal(t, "Alice", joined["hostName"])
	assert.Equal(t, "Bob", expect(t, ctx, host, "player-joined")["playerName"])

	send(t, ctx, guest, map[string]interface{}{
		"type":      "player-shoot",
		"direction": map[string]float64{"x": 0, "y": 1},
		"power":     0.75,
	})
	shot := expect(t, ctx, host, "opponent-shoot")
	assert.Equal(t, 0.75, shot["power"])

	resp, err := http.Get(r.srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.ActiveRooms)

	host.Close(websocket.StatusNormalClosure, "bye")
	expect(t, ctx, guest, "player-disconnected")
	expect(t, ctx, guest, "became-host")
}

func TestRejectsMissingSubprotocol(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r := newTestRelay(t)

	c, _, err := websocket.Dial(ctx, r.wsURL, nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	_, _, err = c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, BadSubprotocolError, websocket.CloseStatus(err))
}

func TestShutdownClosesSockets(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r := newTestRelay(t)

	c := dial(t, ctx, r.wsURL)
	expect(t, ctx, c, "connected")
	r.stop()

	for {
		_, _, err := c.Read(ctx)
		if err != nil {
			assert.Equal(t, ServerShutdownError, websocket.CloseStatus(err))
			return
		}
	}
}

func TestHealthUnknownPath(t *testing.T) {
	w := httptest.NewRecorder()
	HealthHandler(relay.NewRoomStore()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoomsListing(t *testing.T) {
	r := newTestRelay(t)
	ctx := context.Background()
	for _, name := range []string{"Alice", "Dana"} {
		_, err := r.svc.CreateRoom(ctx, relay.NewConnection("test", 8, func() {}), name)
		require.NoError(t, err)
	}

	resp, err := http.Get(r.srv.URL + "/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var infos []relay.RoomInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&infos))
	require.Len(t, infos, 2)
	assert.Less(t, infos[0].Code, infos[1].Code)
	var names []string
	for _, info := range infos {
		require.Len(t, info.Players, 1)
		names = append(names, info.Players[0])
	}
	assert.ElementsMatch(t, []string{"Alice", "Dana"}, names)
}
