package directory

import (
	"context"
	"sync"
)

// Memory is a process-local directory. The relay server uses it for its
// development API and tests use it directly.
type Memory struct {
	mu    sync.RWMutex
	rooms map[string]Room
}

func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]Room)}
}

func (m *Memory) Get(ctx context.Context, code string) (*Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[NormalizeCode(code)]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return &room, nil
}

func (m *Memory) Create(ctx context.Context, room *Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := room.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[room.Code]; ok {
		return ErrRoomExists
	}
	m.rooms[room.Code] = *room
	return nil
}

// Delete is idempotent.
func (m *Memory) Delete(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, NormalizeCode(code))
	return nil
}

func (m *Memory) Close() error { return nil }
