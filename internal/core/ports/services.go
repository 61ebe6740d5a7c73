package ports

import (
	"context"
	"encoding/json"

	"callrelay/internal/core/domain"
)

// PairingStrategy resolves which connections are eligible recipients for a
// sender. It must not mutate registry state.
type PairingStrategy interface {
	Mode() domain.PairingMode
	Resolve(ctx context.Context, sender, to domain.ConnectionID) ([]domain.ConnectionID, error)
	HasPeer(ctx context.Context, sender, to domain.ConnectionID) bool
}

// MessageSink delivers a single outbound message to a connected client.
type MessageSink interface {
	Deliver(ctx context.Context, to domain.ConnectionID, msg domain.Outbound) error
}

type RelayService interface {
	Forward(ctx context.Context, kind domain.MessageType, sender domain.ConnectionID, payload json.RawMessage, targets []domain.ConnectionID) []domain.Envelope
	Deliver(ctx context.Context, envelopes []domain.Envelope) int
}

type SessionService interface {
	Connect(ctx context.Context, id domain.ConnectionID) error
	Join(ctx context.Context, id domain.ConnectionID, room domain.RoomID) ([]domain.Envelope, error)
	CheckPeer(ctx context.Context, id, to domain.ConnectionID) []domain.Envelope
	Initiate(ctx context.Context, caller, to domain.ConnectionID) ([]domain.Envelope, error)
	Accept(ctx context.Context, callee, to domain.ConnectionID) ([]domain.Envelope, error)
	Reject(ctx context.Context, callee, to domain.ConnectionID) ([]domain.Envelope, error)
	Negotiate(ctx context.Context, sender domain.ConnectionID, msg domain.Inbound) ([]domain.Envelope, error)
	Hangup(ctx context.Context, id domain.ConnectionID) []domain.Envelope
	Disconnect(ctx context.Context, id domain.ConnectionID) []domain.Envelope
	CallState(ctx context.Context, id domain.ConnectionID) domain.CallState
	SessionState(ctx context.Context, id domain.ConnectionID) domain.SessionState
	ActiveSessions(ctx context.Context) int
}

// EventPublisher fans lifecycle events out to other instances or observers.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.Event) error
}

// SignalMetrics records relay activity.
type SignalMetrics interface {
	ConnectionOpened()
	ConnectionClosed()
	RoomsActive(n int)
	MessageReceived(kind domain.MessageType)
	MessageRelayed(kind domain.MessageType)
	MessageDropped(reason string)
	CallStarted()
	CallEnded(reason string)
}
