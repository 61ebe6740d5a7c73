package services

import (
	"context"
	"encoding/json"
	"testing"

	"callrelay/internal/core/domain"
	"callrelay/internal/infrastructure/repositories/memory"
	rlog "callrelay/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestDispatcher(t *testing.T, mode domain.PairingMode) (*Dispatcher, *recordingSink) {
	t.Helper()
	return newLoggedDispatcher(t, mode, nil)
}

func newLoggedDispatcher(t *testing.T, mode domain.PairingMode, cl *rlog.ContextLogger) (*Dispatcher, *recordingSink) {
	t.Helper()
	registry := memory.NewMemoryConnectionRegistry()
	pairing, err := NewPairingStrategy(mode, registry)
	require.NoError(t, err)
	sink := newRecordingSink()
	relay := NewRelayService(registry, sink, nil, nil)
	sessions := NewSessionService(registry, pairing, relay, SessionOptions{})

	return NewDispatcher(sessions, relay, DispatcherOptions{
		Greeting: json.RawMessage(`{"pairing":"` + string(mode) + `"}`),
		Logger:   cl,
	}), sink
}

func TestDispatcher_GreetsNewConnection(t *testing.T) {
	d, sink := newTestDispatcher(t, domain.PairingRoom)
	ctx := context.Background()

	require.NoError(t, d.HandleConnection(ctx, "a"))

	got := sink.messages("a")
	require.Len(t, got, 1)
	assert.Equal(t, domain.MessageConnected, got[0].Type)
	assert.Equal(t, domain.ConnectionID("a"), got[0].ID)
	assert.JSONEq(t, `{"pairing":"room"}`, string(got[0].Payload))

	assert.Error(t, d.HandleConnection(ctx, "a"), "ids are unique")
}

func TestDispatcher_RoomCallFlow(t *testing.T) {
	d, sink := newTestDispatcher(t, domain.PairingRoom)
	ctx := context.Background()
	for _, id := range []domain.ConnectionID{"a", "b", "c"} {
		require.NoError(t, d.HandleConnection(ctx, id))
	}
	require.NoError(t, d.HandleMessage(ctx, "a", []byte(`{"type":"join","room":"r1"}`)))
	require.NoError(t, d.HandleMessage(ctx, "b", []byte(`{"type":"join","room":"r1"}`)))
	require.NoError(t, d.HandleMessage(ctx, "c", []byte(`{"type":"join","room":"r2"}`)))
	sink.reset()

	require.NoError(t, d.HandleMessage(ctx, "a", []byte(`{"type":"call-user"}`)))
	require.NoError(t, d.HandleMessage(ctx, "b", []byte(`{"type":"call-accepted"}`)))
	require.NoError(t, d.HandleMessage(ctx, "a", []byte(`{"type":"offer","payload":{"sdp":"o"}}`)))
	require.NoError(t, d.HandleMessage(ctx, "b", []byte(`{"type":"answer","payload":{"sdp":"a"}}`)))
	require.NoError(t, d.HandleMessage(ctx, "b", []byte(`{"type":"ice-candidate","payload":{"candidate":"c1"}}`)))

	assert.Equal(t, []domain.MessageType{
		domain.MessageStartWebRTC,
		domain.MessageAnswer,
		domain.MessageICECandidate,
	}, sink.types("a"))
	assert.Equal(t, []domain.MessageType{
		domain.MessageIncomingCall,
		domain.MessageOffer,
	}, sink.types("b"))
	assert.Empty(t, sink.messages("c"), "other rooms are isolated")

	require.NoError(t, d.HandleMessage(ctx, "b", []byte(`{"type":"end-call"}`)))
	assert.Equal(t, domain.MessageHangup, sink.messages("a")[3].Type)
}

func TestDispatcher_ReportsErrorsToSender(t *testing.T) {
	d, sink := newTestDispatcher(t, domain.PairingAddressed)
	ctx := context.Background()
	require.NoError(t, d.HandleConnection(ctx, "a"))
	sink.reset()

	tests := []struct {
		name  string
		frame string
		code  string
	}{
		{"not json", `{"type":`, "MALFORMED_MESSAGE"},
		{"unknown type", `{"type":"dance"}`, "MALFORMED_MESSAGE"},
		{"missing type", `{}`, "MALFORMED_MESSAGE"},
		{"unknown recipient", `{"type":"offer","to":"ghost","payload":{}}`, "UNKNOWN_RECIPIENT"},
		{"nothing to accept", `{"type":"call-accepted"}`, "NO_PENDING_CALL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink.reset()
			err := d.HandleMessage(ctx, "a", []byte(tt.frame))
			assert.Error(t, err)

			got := sink.messages("a")
			require.Len(t, got, 1)
			assert.Equal(t, domain.MessageError, got[0].Type)
			assert.Equal(t, tt.code, got[0].Code)
			assert.NotEmpty(t, got[0].Message)
		})
	}
}

func TestDispatcher_DisconnectNotifiesPeer(t *testing.T) {
	d, sink := newTestDispatcher(t, domain.PairingGlobal)
	ctx := context.Background()
	require.NoError(t, d.HandleConnection(ctx, "a"))
	require.NoError(t, d.HandleConnection(ctx, "b"))
	require.NoError(t, d.HandleMessage(ctx, "a", []byte(`{"type":"call-user"}`)))
	require.NoError(t, d.HandleMessage(ctx, "b", []byte(`{"type":"call-accepted"}`)))
	sink.reset()

	d.HandleDisconnect(ctx, "b")
	d.HandleDisconnect(ctx, "b")

	got := sink.messages("a")
	require.Len(t, got, 1)
	assert.Equal(t, domain.MessageUserDisconnected, got[0].Type)
	assert.Equal(t, domain.ConnectionID("b"), got[0].From)

	require.NoError(t, d.HandleMessage(ctx, "a", []byte(`{"type":"check-peer"}`)))
	assert.Equal(t, domain.MessageNoPeer, sink.messages("a")[1].Type)
}

func TestDispatcher_RejectCallAlias(t *testing.T) {
	d, sink := newTestDispatcher(t, domain.PairingGlobal)
	ctx := context.Background()
	require.NoError(t, d.HandleConnection(ctx, "a"))
	require.NoError(t, d.HandleConnection(ctx, "b"))
	require.NoError(t, d.HandleMessage(ctx, "a", []byte(`{"type":"call-user"}`)))
	sink.reset()

	require.NoError(t, d.HandleMessage(ctx, "b", []byte(`{"type":"reject-call","to":"a"}`)))

	got := sink.messages("a")
	require.Len(t, got, 1)
	assert.Equal(t, domain.MessageCallEnded, got[0].Type)
	assert.Equal(t, domain.ReasonRejected, got[0].Reason)
	assert.Empty(t, sink.messages("b"))
}

func TestDispatcher_LogsWithContextFields(t *testing.T) {
	previous := otel.GetTracerProvider()
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		tp.Shutdown(context.Background())
	})

	core, logs := observer.New(zapcore.DebugLevel)
	d, _ := newLoggedDispatcher(t, domain.PairingRoom, rlog.NewContextLogger(zap.New(core)))
	ctx := rlog.WithConnectionID(context.Background(), "a")
	require.NoError(t, d.HandleConnection(ctx, "a"))

	assert.Error(t, d.HandleMessage(ctx, "a", []byte(`{"type":"dance"}`)))

	entries := logs.FilterMessage("signaling error").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "a", fields["connection_id"])
	assert.EqualValues(t, "MALFORMED_MESSAGE", fields["code"])
	assert.NotEmpty(t, fields["trace_id"], "the per-frame span reaches the log line")

	registered := logs.FilterMessage("connection registered").All()
	require.Len(t, registered, 1)
	assert.Equal(t, "a", registered[0].ContextMap()["connection_id"])
}
