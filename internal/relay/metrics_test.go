package relay

import (
	"context"
	"testing"

	"github.com/jason-s-yu/neonmarble/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

// counted sums the data points of a counter whose attribute key equals value.
// An empty key matches every point.
func counted(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	m, ok := findMetric(rm, name)
	if !ok {
		return 0
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", name)
	var total int64
	for _, dp := range sum.DataPoints {
		if key != "" {
			v, ok := dp.Attributes.Value(attribute.Key(key))
			if !ok || v.AsString() != value {
				continue
			}
		}
		total += dp.Value
	}
	return total
}

func gauge(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m, ok := findMetric(rm, name)
	require.True(t, ok, "%s not collected", name)
	g, ok := m.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, g.DataPoints, 1)
	return g.DataPoints[0].Value
}

func TestMetricsCountRelayActivity(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	s := newTestService(t)
	m, err := NewMetrics(mp, s.Rooms)
	require.NoError(t, err)
	s.Metrics = m

	host := NewConnection("test", 1, func() {}) // room-created fills it
	guest, stranger := newTestConn(), newTestConn()
	res, err := s.CreateRoom(ctx, host, "Alice")
	require.NoError(t, err)
	_, err = s.JoinRoom(ctx, guest, res.RoomCode, "Bob")
	require.NoError(t, err)
	_, err = s.JoinRoom(ctx, stranger, "ZZZZZZ", "Carol")
	require.ErrorIs(t, err, ErrRoomNotFound)
	require.NoError(t, s.RelayShoot(ctx, guest, models.Vec(1, 0), 1))

	rm := collect(t, reader)
	assert.Equal(t, int64(1), counted(t, rm, "relay.rooms.created", "", ""))
	assert.Equal(t, int64(1), counted(t, rm, "relay.joins.rejected", "reason", "room_not_found"))
	assert.Equal(t, int64(1), counted(t, rm, "relay.messages.dropped", "type", "player-joined"))
	assert.Equal(t, int64(1), counted(t, rm, "relay.messages.dropped", "type", "opponent-shoot"))
	assert.Equal(t, int64(1), counted(t, rm, "relay.messages.relayed", "type", "room-created"))
	assert.Equal(t, int64(1), gauge(t, rm, "relay.rooms.active"))

	s.Disconnect(ctx, guest)
	s.Disconnect(ctx, host)

	rm = collect(t, reader)
	assert.Equal(t, int64(1), counted(t, rm, "relay.rooms.destroyed", "", ""))
	assert.Equal(t, int64(0), gauge(t, rm, "relay.rooms.active"))
}
