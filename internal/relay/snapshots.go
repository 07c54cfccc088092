package relay

import (
	"context"
	"sync"
)

// SnapshotStore holds the latest game snapshot of each room, keyed by room code.
// Snapshots are opaque JSON; the relay never interprets them.
type SnapshotStore interface {
	Save(ctx context.Context, code string, snapshot []byte) error
	Load(ctx context.Context, code string) ([]byte, bool, error)
	Delete(ctx context.Context, code string) error
}

// MemorySnapshots keeps snapshots in process memory.
type MemorySnapshots struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{items: make(map[string][]byte)}
}

func (m *MemorySnapshots) Save(_ context.Context, code string, snapshot []byte) error {
	cp := append([]byte(nil), snapshot...)
	m.mu.Lock()
	m.items[code] = cp
	m.mu.Unlock()
	return nil
}

func (m *MemorySnapshots) Load(_ context.Context, code string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.items[code]
	return s, ok, nil
}

func (m *MemorySnapshots) Delete(_ context.Context, code string) error {
	m.mu.Lock()
	delete(m.items, code)
	m.mu.Unlock()
	return nil
}
