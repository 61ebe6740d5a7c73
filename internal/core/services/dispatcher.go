package services

import (
	"context"
	"encoding/json"
	"fmt"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"
	apperrors "callrelay/pkg/errors"
	rlog "callrelay/pkg/logger"
	"callrelay/pkg/tracing"

	"go.uber.org/zap"
)

type handlerFunc func(ctx context.Context, from domain.ConnectionID, msg domain.Inbound) ([]domain.Envelope, error)

type DispatcherOptions struct {
	// Greeting is attached as the payload of the connected message.
	Greeting json.RawMessage
	Metrics  ports.SignalMetrics
	// Logger picks connection and trace ids up from the request context.
	Logger *rlog.ContextLogger
}

// Dispatcher decodes inbound frames, routes them through a fixed dispatch
// table and delivers the resulting envelopes in the order handlers return
// them. One connection's frames must be passed in sequentially.
type Dispatcher struct {
	sessions ports.SessionService
	relay    ports.RelayService
	greeting json.RawMessage
	metrics  ports.SignalMetrics
	log      *rlog.ContextLogger
	handlers map[domain.MessageType]handlerFunc
}

func NewDispatcher(sessions ports.SessionService, relay ports.RelayService, opts DispatcherOptions) *Dispatcher {
	d := &Dispatcher{
		sessions: sessions,
		relay:    relay,
		greeting: opts.Greeting,
		metrics:  opts.Metrics,
		log:      opts.Logger,
	}
	if d.metrics == nil {
		d.metrics = nopMetrics{}
	}
	if d.log == nil {
		d.log = rlog.NewContextLogger(zap.NewNop())
	}

	d.handlers = map[domain.MessageType]handlerFunc{
		domain.MessageJoin:         d.handleJoin,
		domain.MessageCheckPeer:    d.handleCheckPeer,
		domain.MessageCallUser:     d.handleCallUser,
		domain.MessageCallAccepted: d.handleCallAccepted,
		domain.MessageCallRejected: d.handleCallRejected,
		domain.MessageRejectCall:   d.handleCallRejected,
		domain.MessageOffer:        d.handleNegotiation,
		domain.MessageAnswer:       d.handleNegotiation,
		domain.MessageICECandidate: d.handleNegotiation,
		domain.MessageHangup:       d.handleHangup,
		domain.MessageEndCall:      d.handleHangup,
	}
	return d
}

var _ ports.WebSocketHandler = (*Dispatcher)(nil)

// HandleConnection registers id and greets it with its own connection id.
func (d *Dispatcher) HandleConnection(ctx context.Context, id domain.ConnectionID) error {
	if err := d.sessions.Connect(ctx, id); err != nil {
		return fmt.Errorf("register connection: %w", err)
	}
	d.relay.Deliver(ctx, []domain.Envelope{{
		To:      id,
		Message: domain.Outbound{Type: domain.MessageConnected, ID: id, Payload: d.greeting},
	}})
	d.log.Sugar(ctx).Info("connection registered")
	return nil
}

// HandleMessage processes one raw frame from id. Core errors are reported to
// the sender as an error message and returned for logging; none of them
// should end the connection.
func (d *Dispatcher) HandleMessage(ctx context.Context, id domain.ConnectionID, message []byte) error {
	var msg domain.Inbound
	if err := json.Unmarshal(message, &msg); err != nil {
		return d.fail(ctx, id, fmt.Errorf("decode frame: %v: %w", err, domain.ErrMalformedMessage))
	}

	ctx, span := tracing.TraceWebSocketMessage(ctx, string(msg.Type), string(id))
	defer span.End()

	handler, ok := d.handlers[msg.Type]
	if !ok {
		err := fmt.Errorf("unknown message type %q: %w", msg.Type, domain.ErrMalformedMessage)
		tracing.RecordError(ctx, err)
		return d.fail(ctx, id, err)
	}
	d.metrics.MessageReceived(msg.Type)

	envelopes, err := handler(ctx, id, msg)
	d.relay.Deliver(ctx, envelopes)
	d.log.Sugar(ctx).Debugw("frame handled", "type", msg.Type, "recipients", len(envelopes))
	tracing.AddSpanAttributes(ctx, tracing.RecipientsKey.Int(len(envelopes)))

	if err != nil {
		tracing.RecordError(ctx, err)
		return d.fail(ctx, id, err)
	}
	return nil
}

// HandleDisconnect ends any call id was part of and evicts it. Safe to call
// more than once.
func (d *Dispatcher) HandleDisconnect(ctx context.Context, id domain.ConnectionID) {
	envelopes := d.sessions.Disconnect(ctx, id)
	d.relay.Deliver(ctx, envelopes)
	d.log.Sugar(ctx).Infow("connection unregistered", "notified", len(envelopes))
}

func (d *Dispatcher) handleJoin(ctx context.Context, from domain.ConnectionID, msg domain.Inbound) ([]domain.Envelope, error) {
	return d.sessions.Join(ctx, from, msg.Room)
}

func (d *Dispatcher) handleCheckPeer(ctx context.Context, from domain.ConnectionID, msg domain.Inbound) ([]domain.Envelope, error) {
	return d.sessions.CheckPeer(ctx, from, msg.To), nil
}

func (d *Dispatcher) handleCallUser(ctx context.Context, from domain.ConnectionID, msg domain.Inbound) ([]domain.Envelope, error) {
	return d.sessions.Initiate(ctx, from, msg.To)
}

func (d *Dispatcher) handleCallAccepted(ctx context.Context, from domain.ConnectionID, msg domain.Inbound) ([]domain.Envelope, error) {
	return d.sessions.Accept(ctx, from, msg.To)
}

func (d *Dispatcher) handleCallRejected(ctx context.Context, from domain.ConnectionID, msg domain.Inbound) ([]domain.Envelope, error) {
	return d.sessions.Reject(ctx, from, msg.To)
}

func (d *Dispatcher) handleNegotiation(ctx context.Context, from domain.ConnectionID, msg domain.Inbound) ([]domain.Envelope, error) {
	return d.sessions.Negotiate(ctx, from, msg)
}

func (d *Dispatcher) handleHangup(ctx context.Context, from domain.ConnectionID, _ domain.Inbound) ([]domain.Envelope, error) {
	return d.sessions.Hangup(ctx, from), nil
}

// fail logs err and reports it to the sender.
func (d *Dispatcher) fail(ctx context.Context, id domain.ConnectionID, err error) error {
	appErr := apperrors.FromDomain(err)
	d.log.Sugar(ctx).Infow("signaling error", "code", appErr.Code, "error", err)
	d.metrics.MessageDropped(string(appErr.Code))

	d.relay.Deliver(ctx, []domain.Envelope{{
		To: id,
		Message: domain.Outbound{
			Type:    domain.MessageError,
			Code:    string(appErr.Code),
			Message: appErr.Message,
		},
	}})
	return err
}
