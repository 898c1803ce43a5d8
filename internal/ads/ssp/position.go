package ssp

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/patrickwarner/adslot/internal/adconfig"
	"github.com/patrickwarner/adslot/internal/sssp"
)

// Position is one ad position as configured on the slot.
type Position struct {
	ID     string `json:"id"`
	Width  string `json:"width,omitempty"`
	Height string `json:"height,omitempty"`
	ZoneID string `json:"zoneId,omitempty"`
}

// Zone converts p to the vendor request form.
func (p Position) Zone() sssp.Zone {
	return sssp.Zone{ID: p.ID, Width: p.Width, Height: p.Height, ZoneID: p.ZoneID}
}

// ParsePosition decodes the "position" attribute. It accepts a JSON object or
// an array whose first element is used; the attribute may be a JSON string or
// an already decoded value. Numeric fields are kept in their string form.
func ParsePosition(cfg adconfig.Config) (Position, error) {
	raw, err := positionJSON(cfg["position"])
	if err != nil {
		return Position{}, invalid(cfg, err.Error())
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Position{}, invalid(cfg, "malformed JSON")
	}
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return Position{}, nil
		}
		v = list[0]
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return Position{}, invalid(cfg, "not an object")
	}
	fields := adconfig.Config(obj)
	return Position{
		ID:     fields.StringOr("id", ""),
		Width:  fields.StringOr("width", ""),
		Height: fields.StringOr("height", ""),
		ZoneID: fields.StringOr("zoneId", ""),
	}, nil
}

func positionJSON(v any) ([]byte, error) {
	switch t := v.(type) {
	case string:
		return []byte(t), nil
	case json.RawMessage:
		return t, nil
	default:
		return json.Marshal(t)
	}
}

func invalid(cfg adconfig.Config, reason string) error {
	return &adconfig.ValidationError{Type: cfg.Type(), Field: "position", Reason: reason}
}

// Queue collects the positions of every slot in a unit until they are
// resolved together.
type Queue struct {
	mu        sync.Mutex
	positions []Position
}

// Add appends p.
func (q *Queue) Add(p Position) {
	q.mu.Lock()
	q.positions = append(q.positions, p)
	q.mu.Unlock()
}

// Snapshot returns a copy of the queued positions.
func (q *Queue) Snapshot() []Position {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Position(nil), q.positions...)
}

// Len reports the number of queued positions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.positions)
}
