package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics.
// Components receive it at construction instead of touching the Prometheus
// globals directly.
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Slot lifecycle metrics
	IncrementSlotOutcome(adapter, outcome string)
	IncrementValidationErrors(adapter string)
	IncrementResizeRequests()
	IncrementEvent(eventType string)

	// Master frame metrics
	IncrementMasterComputations(key, role string)

	// Vendor metrics
	IncrementScriptLoads(outcome string)
	IncrementVendorRequests(outcome string)
	RecordVendorLatency(duration time.Duration)
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

// HTTP Request metrics
func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// Slot lifecycle metrics
func (r *PrometheusRegistry) IncrementSlotOutcome(adapter, outcome string) {
	SlotOutcomes.WithLabelValues(adapter, outcome).Inc()
}

func (r *PrometheusRegistry) IncrementValidationErrors(adapter string) {
	ValidationErrors.WithLabelValues(adapter).Inc()
}

func (r *PrometheusRegistry) IncrementResizeRequests() {
	ResizeRequests.Inc()
}

func (r *PrometheusRegistry) IncrementEvent(eventType string) {
	EventCount.WithLabelValues(eventType).Inc()
}

// Master frame metrics
func (r *PrometheusRegistry) IncrementMasterComputations(key, role string) {
	MasterComputations.WithLabelValues(key, role).Inc()
}

// Vendor metrics
func (r *PrometheusRegistry) IncrementScriptLoads(outcome string) {
	ScriptLoads.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) IncrementVendorRequests(outcome string) {
	VendorRequests.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) RecordVendorLatency(duration time.Duration) {
	VendorLatency.Observe(duration.Seconds())
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementSlotOutcome(adapter, outcome string)                         {}
func (r *NoOpRegistry) IncrementValidationErrors(adapter string)                             {}
func (r *NoOpRegistry) IncrementResizeRequests()                                             {}
func (r *NoOpRegistry) IncrementEvent(eventType string)                                      {}
func (r *NoOpRegistry) IncrementMasterComputations(key, role string)                         {}
func (r *NoOpRegistry) IncrementScriptLoads(outcome string)                                  {}
func (r *NoOpRegistry) IncrementVendorRequests(outcome string)                               {}
func (r *NoOpRegistry) RecordVendorLatency(duration time.Duration)                           {}
