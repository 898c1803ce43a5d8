package observability

import (
	"strings"
	"sync"
	"time"
)

// MockMetricsRegistry counts calls so tests can assert on recorded metrics.
// Keys are the method name followed by its labels, joined with ":".
type MockMetricsRegistry struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *MockMetricsRegistry) inc(parts ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[strings.Join(parts, ":")]++
}

// Count returns how many times the metric identified by parts was recorded.
func (m *MockMetricsRegistry) Count(parts ...string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[strings.Join(parts, ":")]
}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string) {
	m.inc("requests", endpoint, method, status)
}
func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}

func (m *MockMetricsRegistry) IncrementSlotOutcome(adapter, outcome string) {
	m.inc("slot_outcome", adapter, outcome)
}
func (m *MockMetricsRegistry) IncrementValidationErrors(adapter string) {
	m.inc("validation_errors", adapter)
}
func (m *MockMetricsRegistry) IncrementResizeRequests()        { m.inc("resize_requests") }
func (m *MockMetricsRegistry) IncrementEvent(eventType string) { m.inc("event", eventType) }

func (m *MockMetricsRegistry) IncrementMasterComputations(key, role string) {
	m.inc("master_compute", key, role)
}

func (m *MockMetricsRegistry) IncrementScriptLoads(outcome string)   { m.inc("script_loads", outcome) }
func (m *MockMetricsRegistry) IncrementVendorRequests(outcome string) { m.inc("vendor_requests", outcome) }
func (m *MockMetricsRegistry) RecordVendorLatency(duration time.Duration) {}
