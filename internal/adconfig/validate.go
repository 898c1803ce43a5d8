package adconfig

import (
	"slices"

	"go.uber.org/zap"
)

// hostFields are set by the slot host for every adapter and are never
// reported as unknown.
var hostFields = []string{
	"width", "height", "type", "referrer", "canonicalUrl", "pageViewId",
	"location", "mode", "consentNotificationId", "blockOnConsent",
	"ampSlotIndex", "adHolderText", "loadingStrategy", "htmlAccessAllowed",
	"adContainerId", "unit",
}

// Validate checks that every mandatory field is present and non-empty.
//
// When optional is non-nil, fields outside mandatory, optional and the host
// fields are logged as unknown; they never fail validation.
func Validate(c Config, mandatory []string, optional []string) error {
	for _, field := range mandatory {
		if _, ok := c.String(field); !ok {
			return &ValidationError{Type: c.Type(), Field: field, Reason: "missing"}
		}
	}
	if optional != nil {
		warnUnknown(c, append(slices.Clone(mandatory), optional...))
	}
	return nil
}

// UnknownFields returns the fields of c that are neither in allowed nor set
// by the host, in sorted order.
func UnknownFields(c Config, allowed []string) []string {
	var unknown []string
	for field := range c {
		if slices.Contains(allowed, field) || slices.Contains(hostFields, field) {
			continue
		}
		unknown = append(unknown, field)
	}
	slices.Sort(unknown)
	return unknown
}

func warnUnknown(c Config, allowed []string) {
	for _, field := range UnknownFields(c, allowed) {
		zap.L().Warn("unknown slot attribute",
			zap.String("type", c.Type()),
			zap.String("field", field))
	}
}
