package relay

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/jason-s-yu/neonmarble/internal/relay"

// Metrics are the relay's OpenTelemetry instruments. A nil *Metrics records nothing.
type Metrics struct {
	roomsCreated   metric.Int64Counter
	roomsDestroyed metric.Int64Counter
	joinsRejected  metric.Int64Counter
	relayed        metric.Int64Counter
	dropped        metric.Int64Counter
	activeRooms    metric.Int64ObservableGauge
}

// NewMetrics registers the instruments on mp. The active room gauge is read from
// rooms on every collection.
func NewMetrics(mp metric.MeterProvider, rooms *RoomStore) (*Metrics, error) {
	m := mp.Meter(instrumentationName)
	out := &Metrics{}
	var err error

	if out.roomsCreated, err = m.Int64Counter("relay.rooms.created",
		metric.WithDescription("Rooms created")); err != nil {
		return nil, fmt.Errorf("creating rooms created counter: %w", err)
	}
	if out.roomsDestroyed, err = m.Int64Counter("relay.rooms.destroyed",
		metric.WithDescription("Rooms destroyed after their last player left")); err != nil {
		return nil, fmt.Errorf("creating rooms destroyed counter: %w", err)
	}
	if out.joinsRejected, err = m.Int64Counter("relay.joins.rejected",
		metric.WithDescription("Join attempts refused, by reason")); err != nil {
		return nil, fmt.Errorf("creating joins rejected counter: %w", err)
	}
	if out.relayed, err = m.Int64Counter("relay.messages.relayed",
		metric.WithDescription("Messages delivered to a player outbox, by type")); err != nil {
		return nil, fmt.Errorf("creating relayed counter: %w", err)
	}
	if out.dropped, err = m.Int64Counter("relay.messages.dropped",
		metric.WithDescription("Messages dropped because a player outbox was full, by type")); err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	if out.activeRooms, err = m.Int64ObservableGauge("relay.rooms.active",
		metric.WithDescription("Rooms currently open")); err != nil {
		return nil, fmt.Errorf("creating active rooms gauge: %w", err)
	}
	if _, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(out.activeRooms, int64(rooms.Len()))
		return nil
	}, out.activeRooms); err != nil {
		return nil, fmt.Errorf("registering active rooms callback: %w", err)
	}
	return out, nil
}

func (m *Metrics) roomCreated(ctx context.Context) {
	if m != nil {
		m.roomsCreated.Add(ctx, 1)
	}
}

func (m *Metrics) roomDestroyed(ctx context.Context) {
	if m != nil {
		m.roomsDestroyed.Add(ctx, 1)
	}
}

func (m *Metrics) joinRejected(ctx context.Context, reason string) {
	if m != nil {
		m.joinsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func (m *Metrics) delivered(ctx context.Context, msgType string, ok bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("type", msgType))
	if ok {
		m.relayed.Add(ctx, 1, attrs)
	} else {
		m.dropped.Add(ctx, 1, attrs)
	}
}
