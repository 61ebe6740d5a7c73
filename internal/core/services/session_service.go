package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"
	"callrelay/pkg/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reasons a call ends, as reported to metrics and events.
const (
	EndReasonHangup     = "hangup"
	EndReasonDisconnect = "disconnect"
	EndReasonRejected   = "rejected"
)

type SessionOptions struct {
	OfferInitiator domain.OfferInitiator
	Events         ports.EventPublisher
	Metrics        ports.SignalMetrics
	Logger         *zap.SugaredLogger
}

// sessionService drives the call handshake. The session table is guarded by
// mu; registry calls made while holding mu never call back into the service.
// Envelopes are returned to the caller and delivered outside the lock.
type sessionService struct {
	registry ports.ConnectionRegistry
	pairing  ports.PairingStrategy
	relay    ports.RelayService

	offerInitiator domain.OfferInitiator
	events         ports.EventPublisher
	metrics        ports.SignalMetrics
	logger         *zap.SugaredLogger

	mu       sync.Mutex
	sessions map[domain.SessionID]*domain.Session
	byConn   map[domain.ConnectionID]domain.SessionID
}

func NewSessionService(
	registry ports.ConnectionRegistry,
	pairing ports.PairingStrategy,
	relay ports.RelayService,
	opts SessionOptions,
) ports.SessionService {
	s := &sessionService{
		registry:       registry,
		pairing:        pairing,
		relay:          relay,
		offerInitiator: opts.OfferInitiator,
		events:         opts.Events,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
		sessions:       make(map[domain.SessionID]*domain.Session),
		byConn:         make(map[domain.ConnectionID]domain.SessionID),
	}
	if s.offerInitiator != domain.OfferByCallee {
		s.offerInitiator = domain.OfferByCaller
	}
	if s.events == nil {
		s.events = nopPublisher{}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}
	return s
}

func (s *sessionService) Connect(ctx context.Context, id domain.ConnectionID) error {
	if err := s.registry.Register(ctx, id); err != nil {
		return err
	}
	s.metrics.ConnectionOpened()
	s.publish(ctx, &domain.Event{Type: domain.EventConnectionRegistered, ConnectionID: id})
	return nil
}

func (s *sessionService) Join(ctx context.Context, id domain.ConnectionID, room domain.RoomID) ([]domain.Envelope, error) {
	if err := validation.ValidateRoomID(string(room)); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrMalformedMessage)
	}
	s.mu.Lock()
	if _, inCall := s.byConn[id]; inCall {
		s.mu.Unlock()
		return nil, fmt.Errorf("cannot change room during a call: %w", domain.ErrDuplicateCall)
	}
	err := s.registry.Join(ctx, id, room)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.metrics.RoomsActive(s.registry.RoomCount(ctx))
	s.publish(ctx, &domain.Event{Type: domain.EventRoomJoined, ConnectionID: id, Room: room})

	return []domain.Envelope{{
		To:      id,
		Message: domain.Outbound{Type: domain.MessageJoined, Room: room},
	}}, nil
}

func (s *sessionService) CheckPeer(ctx context.Context, id, to domain.ConnectionID) []domain.Envelope {
	reply := domain.MessageNoPeer
	if s.pairing.HasPeer(ctx, id, to) {
		reply = domain.MessagePeerActive
	}
	return []domain.Envelope{{To: id, Message: domain.Outbound{Type: reply}}}
}

func (s *sessionService) Initiate(ctx context.Context, caller, to domain.ConnectionID) ([]domain.Envelope, error) {
	s.mu.Lock()

	if _, ok := s.registry.Get(ctx, caller); !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrConnectionNotFound, caller)
	}
	if _, busy := s.byConn[caller]; busy {
		s.mu.Unlock()
		return nil, fmt.Errorf("caller %s: %w", caller, domain.ErrDuplicateCall)
	}

	targets, err := s.pairing.Resolve(ctx, caller, to)
	if err != nil && !errors.Is(err, domain.ErrUnknownRecipient) {
		s.mu.Unlock()
		return nil, err
	}
	if len(targets) == 0 {
		s.mu.Unlock()
		s.logger.Infow("no peer available for call", "caller", caller, "pairing", s.pairing.Mode())
		return []domain.Envelope{{To: caller, Message: domain.Outbound{Type: domain.MessageNoPeer}}}, nil
	}

	invitees := make(map[domain.ConnectionID]struct{}, len(targets))
	for _, target := range targets {
		if _, busy := s.byConn[target]; !busy {
			invitees[target] = struct{}{}
		}
	}
	if len(invitees) == 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("every peer is busy: %w", domain.ErrDuplicateCall)
	}

	session := &domain.Session{
		ID:        domain.SessionID(uuid.NewString()),
		Caller:    caller,
		Invitees:  invitees,
		State:     domain.SessionRinging,
		StartedAt: time.Now(),
	}
	s.sessions[session.ID] = session
	s.byConn[caller] = session.ID
	s.setState(ctx, caller, domain.CallStateCalling)

	envelopes := make([]domain.Envelope, 0, len(invitees))
	for _, target := range targets {
		if _, ok := invitees[target]; !ok {
			continue
		}
		s.byConn[target] = session.ID
		s.setState(ctx, target, domain.CallStateRinging)
		envelopes = append(envelopes, domain.Envelope{
			To:      target,
			Message: domain.Outbound{Type: domain.MessageIncomingCall, From: caller},
		})
	}
	s.mu.Unlock()

	s.logger.Infow("call ringing", "session_id", session.ID, "caller", caller, "invitees", len(invitees))
	s.metrics.CallStarted()
	s.publish(ctx, &domain.Event{Type: domain.EventCallStarted, ConnectionID: caller, SessionID: session.ID})
	return envelopes, nil
}

func (s *sessionService) Accept(ctx context.Context, callee, to domain.ConnectionID) ([]domain.Envelope, error) {
	s.mu.Lock()

	session, err := s.pendingSessionLocked(callee, to)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	var envelopes []domain.Envelope
	for other := range session.Invitees {
		if other == callee {
			continue
		}
		delete(s.byConn, other)
		s.setState(ctx, other, domain.CallStateIdle)
		envelopes = append(envelopes, domain.Envelope{
			To: other,
			Message: domain.Outbound{
				Type:   domain.MessageCallEnded,
				From:   session.Caller,
				Reason: domain.ReasonAnsweredElsewhere,
			},
		})
	}

	session.Callee = callee
	session.Invitees = make(map[domain.ConnectionID]struct{})
	session.State = domain.SessionNegotiating
	s.setState(ctx, session.Caller, domain.CallStateInCall)
	s.setState(ctx, callee, domain.CallStateInCall)

	start := domain.Envelope{
		To:      session.Caller,
		Message: domain.Outbound{Type: domain.MessageStartWebRTC, From: callee},
	}
	if s.offerInitiator == domain.OfferByCallee {
		start = domain.Envelope{
			To:      callee,
			Message: domain.Outbound{Type: domain.MessageStartWebRTC, From: session.Caller},
		}
	}
	envelopes = append(envelopes, start)
	sessionID := session.ID
	s.mu.Unlock()

	s.logger.Infow("call accepted", "session_id", sessionID, "callee", callee)
	s.publish(ctx, &domain.Event{Type: domain.EventCallAnswered, ConnectionID: callee, SessionID: sessionID})
	return envelopes, nil
}

func (s *sessionService) Reject(ctx context.Context, callee, to domain.ConnectionID) ([]domain.Envelope, error) {
	s.mu.Lock()

	session, err := s.pendingSessionLocked(callee, to)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	delete(session.Invitees, callee)
	delete(s.byConn, callee)
	s.setState(ctx, callee, domain.CallStateIdle)

	if len(session.Invitees) > 0 {
		s.mu.Unlock()
		s.logger.Infow("invitee rejected call", "session_id", session.ID, "callee", callee)
		return nil, nil
	}

	delete(s.byConn, session.Caller)
	delete(s.sessions, session.ID)
	s.setState(ctx, session.Caller, domain.CallStateIdle)
	s.mu.Unlock()

	s.logger.Infow("call rejected", "session_id", session.ID, "callee", callee)
	s.metrics.CallEnded(EndReasonRejected)
	s.publish(ctx, &domain.Event{Type: domain.EventCallEnded, ConnectionID: callee, SessionID: session.ID, Reason: EndReasonRejected})

	return []domain.Envelope{{
		To:      session.Caller,
		Message: domain.Outbound{Type: domain.MessageCallEnded, From: callee, Reason: domain.ReasonRejected},
	}}, nil
}

// Negotiate relays an offer, answer or candidate. Routing does not depend on
// call state; the only lifecycle effect is an answer promoting a negotiating
// session to active.
func (s *sessionService) Negotiate(ctx context.Context, sender domain.ConnectionID, msg domain.Inbound) ([]domain.Envelope, error) {
	if !msg.Type.IsNegotiation() {
		return nil, fmt.Errorf("%q is not a negotiation message: %w", msg.Type, domain.ErrMalformedMessage)
	}
	if len(msg.Payload) == 0 {
		return nil, fmt.Errorf("%s payload is required: %w", msg.Type, domain.ErrMalformedMessage)
	}
	if msg.To != "" && s.pairing.Mode() != domain.PairingAddressed {
		s.logger.Debugw("ignoring explicit recipient", "type", msg.Type, "from", sender, "to", msg.To, "pairing", s.pairing.Mode())
	}

	targets, err := s.pairing.Resolve(ctx, sender, msg.To)
	if err != nil {
		return nil, err
	}
	envelopes := s.relay.Forward(ctx, msg.Type, sender, msg.Payload, targets)
	if len(envelopes) == 0 {
		s.logger.Debugw("negotiation message has no recipients", "type", msg.Type, "from", sender)
	}

	s.mu.Lock()
	sid, inCall := s.byConn[sender]
	if inCall && msg.Type == domain.MessageAnswer {
		if session := s.sessions[sid]; session.State == domain.SessionNegotiating {
			session.State = domain.SessionActive
			s.logger.Infow("call active", "session_id", sid)
		}
	}
	s.mu.Unlock()

	if !inCall {
		s.logger.Debugw("negotiation message outside a call", "type", msg.Type, "from", sender)
	}
	return envelopes, nil
}

func (s *sessionService) Hangup(ctx context.Context, id domain.ConnectionID) []domain.Envelope {
	s.mu.Lock()
	envelopes, sessionID, ended := s.leaveSessionLocked(ctx, id, domain.MessageHangup)
	s.mu.Unlock()

	if sessionID == "" {
		s.logger.Debugw("hangup without a call", "connection_id", id)
		return nil
	}
	if ended {
		s.callEnded(ctx, id, sessionID, EndReasonHangup)
	}
	return envelopes
}

// Disconnect is an unconditional hangup followed by eviction. Calling it
// again for the same id is a no-op.
func (s *sessionService) Disconnect(ctx context.Context, id domain.ConnectionID) []domain.Envelope {
	s.mu.Lock()
	envelopes, sessionID, ended := s.leaveSessionLocked(ctx, id, domain.MessageUserDisconnected)
	removed := s.registry.Unregister(ctx, id)
	s.mu.Unlock()

	if ended {
		s.callEnded(ctx, id, sessionID, EndReasonDisconnect)
	}
	if removed {
		s.metrics.ConnectionClosed()
		s.metrics.RoomsActive(s.registry.RoomCount(ctx))
		s.publish(ctx, &domain.Event{Type: domain.EventConnectionUnregistered, ConnectionID: id})
	}
	return envelopes
}

func (s *sessionService) CallState(ctx context.Context, id domain.ConnectionID) domain.CallState {
	conn, ok := s.registry.Get(ctx, id)
	if !ok {
		return domain.CallStateIdle
	}
	return conn.State
}

func (s *sessionService) SessionState(ctx context.Context, id domain.ConnectionID) domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sid, ok := s.byConn[id]; ok {
		return s.sessions[sid].State
	}
	return domain.SessionIdle
}

func (s *sessionService) ActiveSessions(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

// pendingSessionLocked returns the ringing session in which callee is an
// invitee. A non-empty to must name that session's caller.
func (s *sessionService) pendingSessionLocked(callee, to domain.ConnectionID) (*domain.Session, error) {
	sid, ok := s.byConn[callee]
	if !ok {
		return nil, fmt.Errorf("%s: %w", callee, domain.ErrNoPendingCall)
	}
	session := s.sessions[sid]
	if session.State != domain.SessionRinging || !session.HasInvitee(callee) {
		return nil, fmt.Errorf("%s: %w", callee, domain.ErrNoPendingCall)
	}
	if to != "" && to != session.Caller {
		return nil, fmt.Errorf("no call from %s: %w", to, domain.ErrNoPendingCall)
	}
	return session, nil
}

// leaveSessionLocked takes id out of its session. An invitee leaving a
// ringing call that other invitees still ring for drops out silently;
// otherwise the session ends and every other participant gets a kind
// notification. ended reports whether the session was torn down.
func (s *sessionService) leaveSessionLocked(ctx context.Context, id domain.ConnectionID, kind domain.MessageType) ([]domain.Envelope, domain.SessionID, bool) {
	sid, ok := s.byConn[id]
	if !ok {
		return nil, "", false
	}
	session := s.sessions[sid]

	if session.State == domain.SessionRinging && session.HasInvitee(id) && len(session.Invitees) > 1 {
		delete(session.Invitees, id)
		delete(s.byConn, id)
		s.setState(ctx, id, domain.CallStateIdle)
		s.logger.Infow("invitee left ringing call", "session_id", sid, "connection_id", id, "remaining", len(session.Invitees))
		return nil, sid, false
	}

	var envelopes []domain.Envelope
	for _, p := range session.Participants() {
		delete(s.byConn, p)
		s.setState(ctx, p, domain.CallStateIdle)
		if p != id {
			envelopes = append(envelopes, domain.Envelope{
				To:      p,
				Message: domain.Outbound{Type: kind, From: id},
			})
		}
	}
	delete(s.sessions, sid)
	return envelopes, sid, true
}

func (s *sessionService) setState(ctx context.Context, id domain.ConnectionID, state domain.CallState) {
	if err := s.registry.SetCallState(ctx, id, state); err != nil {
		s.logger.Debugw("call state not updated", "connection_id", id, "state", state, "error", err)
	}
}

func (s *sessionService) callEnded(ctx context.Context, id domain.ConnectionID, sid domain.SessionID, reason string) {
	s.logger.Infow("call ended", "session_id", sid, "by", id, "reason", reason)
	s.metrics.CallEnded(reason)
	s.publish(ctx, &domain.Event{Type: domain.EventCallEnded, ConnectionID: id, SessionID: sid, Reason: reason})
}

func (s *sessionService) publish(ctx context.Context, event *domain.Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warnw("failed to publish event", "type", event.Type, "error", err)
	}
}
