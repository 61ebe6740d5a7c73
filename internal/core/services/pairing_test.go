package services

import (
	"context"
	"testing"

	"callrelay/internal/core/domain"
	"callrelay/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pairingFixture(t *testing.T) (context.Context, *memory.MemoryConnectionRegistry) {
	t.Helper()
	ctx := context.Background()
	reg := memory.NewMemoryConnectionRegistry().(*memory.MemoryConnectionRegistry)
	for _, id := range []domain.ConnectionID{"a", "b", "c", "d"} {
		require.NoError(t, reg.Register(ctx, id))
	}
	require.NoError(t, reg.Join(ctx, "a", "r1"))
	require.NoError(t, reg.Join(ctx, "b", "r1"))
	require.NoError(t, reg.Join(ctx, "c", "r2"))
	return ctx, reg
}

func TestNewPairingStrategy_UnknownMode(t *testing.T) {
	_, err := NewPairingStrategy("mesh", memory.NewMemoryConnectionRegistry())
	assert.Error(t, err)
}

func TestGlobalPairing(t *testing.T) {
	ctx, reg := pairingFixture(t)
	p, err := NewPairingStrategy(domain.PairingGlobal, reg)
	require.NoError(t, err)
	assert.Equal(t, domain.PairingGlobal, p.Mode())

	targets, err := p.Resolve(ctx, "a", "c")
	require.NoError(t, err)
	assert.Equal(t, []domain.ConnectionID{"b", "c", "d"}, targets, "explicit recipient is ignored")
	assert.True(t, p.HasPeer(ctx, "d", ""))

	single := memory.NewMemoryConnectionRegistry()
	require.NoError(t, single.Register(ctx, "solo"))
	p, _ = NewPairingStrategy(domain.PairingGlobal, single)
	assert.False(t, p.HasPeer(ctx, "solo", ""))
}

func TestRoomPairing(t *testing.T) {
	ctx, reg := pairingFixture(t)
	p, err := NewPairingStrategy(domain.PairingRoom, reg)
	require.NoError(t, err)

	targets, err := p.Resolve(ctx, "a", "")
	require.NoError(t, err)
	assert.Equal(t, []domain.ConnectionID{"b"}, targets)

	assert.True(t, p.HasPeer(ctx, "b", ""))
	assert.False(t, p.HasPeer(ctx, "c", ""), "alone in r2")
	assert.False(t, p.HasPeer(ctx, "d", ""), "no room joined")
	assert.False(t, p.HasPeer(ctx, "ghost", ""))
}

func TestAddressedPairing(t *testing.T) {
	ctx, reg := pairingFixture(t)
	p, err := NewPairingStrategy(domain.PairingAddressed, reg)
	require.NoError(t, err)

	tests := []struct {
		name    string
		to      domain.ConnectionID
		want    []domain.ConnectionID
		wantErr error
	}{
		{"registered recipient across rooms", "c", []domain.ConnectionID{"c"}, nil},
		{"missing recipient", "", nil, domain.ErrMalformedMessage},
		{"self", "a", nil, domain.ErrMalformedMessage},
		{"unknown recipient", "ghost", nil, domain.ErrUnknownRecipient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			targets, err := p.Resolve(ctx, "a", tt.to)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, targets)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, targets)
		})
	}

	assert.True(t, p.HasPeer(ctx, "a", ""))
	assert.True(t, p.HasPeer(ctx, "a", "d"))
	assert.False(t, p.HasPeer(ctx, "a", "ghost"))
}

func TestPairing_DoesNotMutateRegistry(t *testing.T) {
	ctx, reg := pairingFixture(t)
	for _, mode := range []domain.PairingMode{domain.PairingGlobal, domain.PairingRoom, domain.PairingAddressed} {
		p, err := NewPairingStrategy(mode, reg)
		require.NoError(t, err)
		_, _ = p.Resolve(ctx, "a", "b")
		p.HasPeer(ctx, "a", "b")
	}
	assert.Equal(t, 4, reg.ActiveCount(ctx))
	assert.Equal(t, 2, reg.RoomCount(ctx))
	conn, _ := reg.Get(ctx, "a")
	assert.Equal(t, domain.RoomID("r1"), conn.Room)
}
