package services

import (
	"context"
	"fmt"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"
)

// NewPairingStrategy returns the strategy for mode. Unknown modes are an error
// so a misconfigured deployment never falls back to broadcasting.
func NewPairingStrategy(mode domain.PairingMode, registry ports.ConnectionRegistry) (ports.PairingStrategy, error) {
	switch mode {
	case domain.PairingGlobal:
		return &globalPairing{registry: registry}, nil
	case domain.PairingRoom:
		return &roomPairing{registry: registry}, nil
	case domain.PairingAddressed:
		return &addressedPairing{registry: registry}, nil
	default:
		return nil, fmt.Errorf("unknown pairing mode %q", mode)
	}
}

// globalPairing routes to every other registered connection.
type globalPairing struct {
	registry ports.ConnectionRegistry
}

func (p *globalPairing) Mode() domain.PairingMode { return domain.PairingGlobal }

func (p *globalPairing) Resolve(ctx context.Context, sender, _ domain.ConnectionID) ([]domain.ConnectionID, error) {
	return p.registry.ListOthers(ctx, sender, domain.NoRoom), nil
}

func (p *globalPairing) HasPeer(ctx context.Context, sender, to domain.ConnectionID) bool {
	targets, _ := p.Resolve(ctx, sender, to)
	return len(targets) > 0
}

// roomPairing routes to the other members of the sender's room.
type roomPairing struct {
	registry ports.ConnectionRegistry
}

func (p *roomPairing) Mode() domain.PairingMode { return domain.PairingRoom }

func (p *roomPairing) Resolve(ctx context.Context, sender, _ domain.ConnectionID) ([]domain.ConnectionID, error) {
	conn, ok := p.registry.Get(ctx, sender)
	if !ok || conn.Room == domain.NoRoom {
		return nil, nil
	}
	return p.registry.ListOthers(ctx, sender, conn.Room), nil
}

func (p *roomPairing) HasPeer(ctx context.Context, sender, to domain.ConnectionID) bool {
	targets, _ := p.Resolve(ctx, sender, to)
	return len(targets) > 0
}

// addressedPairing routes only to the connection named by the message.
type addressedPairing struct {
	registry ports.ConnectionRegistry
}

func (p *addressedPairing) Mode() domain.PairingMode { return domain.PairingAddressed }

func (p *addressedPairing) Resolve(ctx context.Context, sender, to domain.ConnectionID) ([]domain.ConnectionID, error) {
	if to == "" {
		return nil, fmt.Errorf("missing recipient: %w", domain.ErrMalformedMessage)
	}
	if to == sender {
		return nil, fmt.Errorf("recipient is the sender: %w", domain.ErrMalformedMessage)
	}
	if _, ok := p.registry.Get(ctx, to); !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownRecipient, to)
	}
	return []domain.ConnectionID{to}, nil
}

// HasPeer without a recipient answers whether anyone else is connected.
func (p *addressedPairing) HasPeer(ctx context.Context, sender, to domain.ConnectionID) bool {
	if to == "" {
		return len(p.registry.ListOthers(ctx, sender, domain.NoRoom)) > 0
	}
	targets, err := p.Resolve(ctx, sender, to)
	return err == nil && len(targets) > 0
}
