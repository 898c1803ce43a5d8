// Package adconfig holds the configuration a slot host passes to an ad
// adapter and the validation rules adapters apply to it.
package adconfig

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
)

// Config is the key/value configuration attached to one ad slot. Values are
// whatever the host decoded from the slot attributes: strings, numbers,
// booleans or nested JSON.
type Config map[string]any

// String returns the value for key rendered as a string. ok is false when the
// key is absent or holds an empty value.
func (c Config) String(key string) (string, bool) {
	v, present := c[key]
	if !present || v == nil {
		return "", false
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		s = strconv.Itoa(t)
	case bool:
		s = strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		s = string(b)
	}
	return s, s != ""
}

// StringOr returns the string value for key, or def when it is missing.
func (c Config) StringOr(key, def string) string {
	if s, ok := c.String(key); ok {
		return s
	}
	return def
}

// Clone returns a shallow copy; nested values are shared.
func (c Config) Clone() Config {
	if c == nil {
		return Config{}
	}
	return maps.Clone(c)
}

// Type is the slot type the host dispatched on, used in error messages.
func (c Config) Type() string {
	return c.StringOr("type", "unknown")
}

// ValidationError reports a slot configuration the adapter refuses to run with.
type ValidationError struct {
	Type   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid attribute for %s: %s: %s", e.Type, e.Field, e.Reason)
}
