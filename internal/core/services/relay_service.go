package services

import (
	"context"
	"encoding/json"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"

	"go.uber.org/zap"
)

// Drop reasons reported to metrics.
const (
	DropStaleSender      = "stale_sender"
	DropUnknownRecipient = "unknown_recipient"
	DropDeliveryFailed   = "delivery_failed"
)

type relayService struct {
	registry ports.ConnectionRegistry
	sink     ports.MessageSink
	metrics  ports.SignalMetrics
	logger   *zap.SugaredLogger
}

func NewRelayService(registry ports.ConnectionRegistry, sink ports.MessageSink, metrics ports.SignalMetrics, logger *zap.SugaredLogger) ports.RelayService {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &relayService{
		registry: registry,
		sink:     sink,
		metrics:  metrics,
		logger:   logger,
	}
}

// Forward builds one envelope per distinct registered target. The payload is
// shared, never copied or decoded.
func (r *relayService) Forward(ctx context.Context, kind domain.MessageType, sender domain.ConnectionID, payload json.RawMessage, targets []domain.ConnectionID) []domain.Envelope {
	if _, ok := r.registry.Get(ctx, sender); !ok {
		r.logger.Infow("dropping message from unregistered sender", "type", kind, "from", sender)
		r.metrics.MessageDropped(DropStaleSender)
		return nil
	}

	seen := make(map[domain.ConnectionID]struct{}, len(targets))
	envelopes := make([]domain.Envelope, 0, len(targets))
	for _, target := range targets {
		if target == sender {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}

		if _, ok := r.registry.Get(ctx, target); !ok {
			r.logger.Infow("dropping message for unknown recipient", "type", kind, "from", sender, "to", target)
			r.metrics.MessageDropped(DropUnknownRecipient)
			continue
		}

		envelopes = append(envelopes, domain.Envelope{
			To: target,
			Message: domain.Outbound{
				Type:    kind,
				From:    sender,
				Payload: payload,
			},
		})
	}
	return envelopes
}

// Deliver hands envelopes to the sink in order and returns how many were
// accepted. Failed deliveries are not retried.
func (r *relayService) Deliver(ctx context.Context, envelopes []domain.Envelope) int {
	delivered := 0
	for _, env := range envelopes {
		// The recipient may have disconnected after the envelope was built.
		if _, ok := r.registry.Get(ctx, env.To); !ok {
			r.logger.Debugw("recipient gone before delivery", "type", env.Message.Type, "to", env.To)
			r.metrics.MessageDropped(DropUnknownRecipient)
			continue
		}
		if err := r.sink.Deliver(ctx, env.To, env.Message); err != nil {
			r.logger.Infow("delivery failed", "type", env.Message.Type, "to", env.To, "error", err)
			r.metrics.MessageDropped(DropDeliveryFailed)
			continue
		}
		if env.Message.Type.IsNegotiation() {
			r.metrics.MessageRelayed(env.Message.Type)
		}
		delivered++
	}
	return delivered
}
