package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adslot_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adslot_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// terminal slot outcomes per adapter (render, no_content, pending)
	SlotOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adslot_slot_outcomes_total",
			Help: "Total slot outcomes per adapter",
		},
		[]string{"adapter", "outcome"},
	)

	// slot configs rejected by validation
	ValidationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adslot_validation_errors_total",
			Help: "Total slot configurations rejected by validation",
		},
		[]string{"adapter"},
	)

	// master computations, role is executed or shared
	MasterComputations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adslot_master_compute_total",
			Help: "Total master frame computations by role",
		},
		[]string{"key", "role"},
	)

	// vendor script loads, outcome is fetched, cached or failed
	ScriptLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adslot_script_loads_total",
			Help: "Total vendor script loads",
		},
		[]string{"outcome"},
	)

	// ad resolution calls to the vendor API labelled by outcome
	VendorRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adslot_vendor_requests_total",
			Help: "Total vendor ad resolution requests",
		},
		[]string{"outcome"},
	)

	// latency of vendor ad resolution calls
	VendorLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adslot_vendor_request_duration_seconds",
			Help:    "Duration of vendor ad resolution requests",
			Buckets: prometheus.DefBuckets,
		},
	)

	// resize requests forwarded to the host
	ResizeRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adslot_resize_requests_total",
			Help: "Total resize requests forwarded to the host frame",
		},
	)

	// number of slot events recorded, labelled by type
	EventCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adslot_events_total",
			Help: "Total slot events recorded",
		},
		[]string{"type"},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		SlotOutcomes,
		ValidationErrors,
		MasterComputations,
		ScriptLoads,
		VendorRequests,
		VendorLatency,
		ResizeRequests,
		EventCount,
	)
}
