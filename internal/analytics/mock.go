package analytics

import (
	"context"
	"sync"
)

var _ AnalyticsService = (*MockAnalytics)(nil)

// MockAnalytics keeps recorded events in memory for tests.
type MockAnalytics struct {
	mu     sync.Mutex
	events []SlotEvent
	// Err, when set, is returned from every RecordSlotEvent call.
	Err error
}

// NewMockAnalytics creates a new mock analytics instance
func NewMockAnalytics() *MockAnalytics {
	return &MockAnalytics{}
}

// RecordSlotEvent records an event (mock implementation)
func (m *MockAnalytics) RecordSlotEvent(ctx context.Context, ev SlotEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (m *MockAnalytics) Events() []SlotEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SlotEvent(nil), m.events...)
}

// Types returns the recorded event types in order.
func (m *MockAnalytics) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.EventType)
	}
	return out
}
