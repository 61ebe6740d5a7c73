package ports

import (
	"context"

	"callrelay/internal/core/domain"
)

// ConnectionRegistry owns every live connection and its room membership.
// Implementations must make each method atomic with respect to the others.
type ConnectionRegistry interface {
	Register(ctx context.Context, id domain.ConnectionID) error
	Join(ctx context.Context, id domain.ConnectionID, room domain.RoomID) error
	Unregister(ctx context.Context, id domain.ConnectionID) bool
	Get(ctx context.Context, id domain.ConnectionID) (domain.Connection, bool)
	SetCallState(ctx context.Context, id domain.ConnectionID, state domain.CallState) error
	// ListOthers returns the members of room other than id, or every other
	// connection when room is domain.NoRoom.
	ListOthers(ctx context.Context, id domain.ConnectionID, room domain.RoomID) []domain.ConnectionID
	ActiveCount(ctx context.Context) int
	RoomCount(ctx context.Context) int
}
