package models

import "time"

// AdUnit describes a group of sibling slots that resolve their ads together.
// Slots name the unit they belong to; the unit definition sizes the
// coordination barrier.
type AdUnit struct {
	// ID is the unit name slots send, e.g. "homepage-ssp".
	ID string `json:"id"`
	// ExpectedSlots is how many slots the unit waits for before resolving.
	ExpectedSlots int `json:"expected_slots"`
	// AggregationWindow bounds how long the unit waits for ExpectedSlots.
	AggregationWindow time.Duration `json:"aggregation_window"`
}
