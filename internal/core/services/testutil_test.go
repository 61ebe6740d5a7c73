package services

import (
	"context"
	"fmt"
	"sync"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"

	"github.com/stretchr/testify/mock"
)

// recordingSink captures deliveries per recipient in arrival order.
type recordingSink struct {
	mu       sync.Mutex
	inbox    map[domain.ConnectionID][]domain.Outbound
	failFor  map[domain.ConnectionID]bool
	failures int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		inbox:   make(map[domain.ConnectionID][]domain.Outbound),
		failFor: make(map[domain.ConnectionID]bool),
	}
}

func (s *recordingSink) Deliver(ctx context.Context, to domain.ConnectionID, msg domain.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[to] {
		s.failures++
		return fmt.Errorf("%w: %s", domain.ErrSendQueueFull, to)
	}
	s.inbox[to] = append(s.inbox[to], msg)
	return nil
}

func (s *recordingSink) messages(id domain.ConnectionID) []domain.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Outbound(nil), s.inbox[id]...)
}

func (s *recordingSink) types(id domain.ConnectionID) []domain.MessageType {
	var out []domain.MessageType
	for _, m := range s.messages(id) {
		out = append(out, m.Type)
	}
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbox = make(map[domain.ConnectionID][]domain.Outbound)
}

// MockEventPublisher records published lifecycle events.
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, event *domain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockSignalMetrics lets tests assert on metric calls.
type MockSignalMetrics struct {
	mock.Mock
}

func (m *MockSignalMetrics) ConnectionOpened()                       { m.Called() }
func (m *MockSignalMetrics) ConnectionClosed()                       { m.Called() }
func (m *MockSignalMetrics) RoomsActive(n int)                       { m.Called(n) }
func (m *MockSignalMetrics) MessageReceived(kind domain.MessageType) { m.Called(kind) }
func (m *MockSignalMetrics) MessageRelayed(kind domain.MessageType)  { m.Called(kind) }
func (m *MockSignalMetrics) MessageDropped(reason string)            { m.Called(reason) }
func (m *MockSignalMetrics) CallStarted()                            { m.Called() }
func (m *MockSignalMetrics) CallEnded(reason string)                 { m.Called(reason) }

var (
	_ ports.MessageSink    = (*recordingSink)(nil)
	_ ports.EventPublisher = (*MockEventPublisher)(nil)
	_ ports.SignalMetrics  = (*MockSignalMetrics)(nil)
)
