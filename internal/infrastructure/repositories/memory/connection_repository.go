package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"
)

type MemoryConnectionRegistry struct {
	connections map[domain.ConnectionID]*domain.Connection
	rooms       map[domain.RoomID]map[domain.ConnectionID]struct{}
	mu          sync.RWMutex
}

func NewMemoryConnectionRegistry() ports.ConnectionRegistry {
	return &MemoryConnectionRegistry{
		connections: make(map[domain.ConnectionID]*domain.Connection),
		rooms:       make(map[domain.RoomID]map[domain.ConnectionID]struct{}),
	}
}

func (r *MemoryConnectionRegistry) Register(ctx context.Context, id domain.ConnectionID) error {
	if id == "" {
		return fmt.Errorf("connection id is required: %w", domain.ErrMalformedMessage)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[id]; exists {
		return fmt.Errorf("%w: %s", domain.ErrConnectionExists, id)
	}

	r.connections[id] = &domain.Connection{
		ID:          id,
		State:       domain.CallStateIdle,
		ConnectedAt: time.Now(),
	}
	return nil
}

func (r *MemoryConnectionRegistry) Join(ctx context.Context, id domain.ConnectionID, room domain.RoomID) error {
	if room == domain.NoRoom {
		return fmt.Errorf("room is required: %w", domain.ErrMalformedMessage)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.connections[id]
	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrConnectionNotFound, id)
	}

	r.leaveRoomLocked(conn)

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[domain.ConnectionID]struct{})
		r.rooms[room] = members
	}
	members[id] = struct{}{}
	conn.Room = room
	return nil
}

func (r *MemoryConnectionRegistry) Unregister(ctx context.Context, id domain.ConnectionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.connections[id]
	if !exists {
		return false
	}

	r.leaveRoomLocked(conn)
	delete(r.connections, id)
	return true
}

func (r *MemoryConnectionRegistry) Get(ctx context.Context, id domain.ConnectionID) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[id]
	if !exists {
		return domain.Connection{}, false
	}
	return *conn, true
}

func (r *MemoryConnectionRegistry) SetCallState(ctx context.Context, id domain.ConnectionID, state domain.CallState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.connections[id]
	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrConnectionNotFound, id)
	}
	conn.State = state
	return nil
}

func (r *MemoryConnectionRegistry) ListOthers(ctx context.Context, id domain.ConnectionID, room domain.RoomID) []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var others []domain.ConnectionID
	if room == domain.NoRoom {
		for other := range r.connections {
			if other != id {
				others = append(others, other)
			}
		}
	} else {
		for other := range r.rooms[room] {
			if other != id {
				others = append(others, other)
			}
		}
	}

	sort.Slice(others, func(i, j int) bool { return others[i] < others[j] })
	return others
}

func (r *MemoryConnectionRegistry) ActiveCount(ctx context.Context) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.connections)
}

func (r *MemoryConnectionRegistry) RoomCount(ctx context.Context) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}

// leaveRoomLocked drops conn from its room and deletes the room once empty.
func (r *MemoryConnectionRegistry) leaveRoomLocked(conn *domain.Connection) {
	if conn.Room == domain.NoRoom {
		return
	}
	if members, ok := r.rooms[conn.Room]; ok {
		delete(members, conn.ID)
		if len(members) == 0 {
			delete(r.rooms, conn.Room)
		}
	}
	conn.Room = domain.NoRoom
}
