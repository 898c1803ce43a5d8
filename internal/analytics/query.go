package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrEmptyFilter is returned by QueryEvents when no filter field is set.
var ErrEmptyFilter = errors.New("event filter is empty")

// EventFilter selects slot events. Set fields are combined with AND.
type EventFilter struct {
	WindowID   string
	PageViewID string
	EventType  string
	Since      time.Time
	Limit      int
}

func (f EventFilter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.WindowID != "" {
		clauses = append(clauses, "window_id=?")
		args = append(args, f.WindowID)
	}
	if f.PageViewID != "" {
		clauses = append(clauses, "page_view_id=?")
		args = append(args, f.PageViewID)
	}
	if f.EventType != "" {
		clauses = append(clauses, "event_type=?")
		args = append(args, f.EventType)
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "timestamp>=?")
		args = append(args, f.Since)
	}
	return strings.Join(clauses, " AND "), args
}

// QueryEvents returns the events matching f ordered by window and time.
func (a *Analytics) QueryEvents(ctx context.Context, f EventFilter) ([]SlotEvent, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	where, args := f.where()
	if where == "" {
		return nil, ErrEmptyFilter
	}
	query := `SELECT timestamp, event_type, adapter, unit_id, window_id, page_view_id, position_id, height, detail FROM slot_events WHERE ` + where + ` ORDER BY window_id, timestamp`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := a.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var events []SlotEvent
	for rows.Next() {
		var ev SlotEvent
		if err := rows.Scan(&ev.Timestamp, &ev.EventType, &ev.Adapter, &ev.UnitID, &ev.WindowID, &ev.PageViewID, &ev.PositionID, &ev.Height, &ev.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return events, nil
}

// Outcomes reported by WindowLifecycle.
const (
	OutcomePending   = "pending"
	OutcomeRender    = "render"
	OutcomeNoContent = "no_content"
	OutcomeInvalid   = "invalid"
)

// WindowLifecycle is the recorded history of one slot window.
type WindowLifecycle struct {
	WindowID   string    `json:"window_id"`
	PageViewID string    `json:"page_view_id"`
	Adapter    string    `json:"adapter"`
	UnitID     string    `json:"unit_id"`
	PositionID string    `json:"position_id,omitempty"`
	Started    time.Time `json:"started"`
	Outcome    string    `json:"outcome"`
	Height     int32     `json:"height,omitempty"`
	Events     []string  `json:"events"`
}

// Lifecycles groups events by window in first-seen order. The first terminal
// event decides the outcome; the last resize sets the height.
func Lifecycles(events []SlotEvent) []WindowLifecycle {
	var out []WindowLifecycle
	index := make(map[string]int)
	for _, ev := range events {
		i, ok := index[ev.WindowID]
		if !ok {
			i = len(out)
			index[ev.WindowID] = i
			out = append(out, WindowLifecycle{
				WindowID:   ev.WindowID,
				PageViewID: ev.PageViewID,
				Adapter:    ev.Adapter,
				UnitID:     ev.UnitID,
				Started:    ev.Timestamp,
				Outcome:    OutcomePending,
			})
		}
		lc := &out[i]
		lc.Events = append(lc.Events, ev.EventType)
		if ev.PositionID != "" {
			lc.PositionID = ev.PositionID
		}
		switch ev.EventType {
		case EventResize:
			lc.Height = ev.Height
		case EventValidationError:
			if lc.Outcome == OutcomePending {
				lc.Outcome = OutcomeInvalid
			}
		case EventRenderStart:
			if lc.Outcome == OutcomePending {
				lc.Outcome = OutcomeRender
			}
		case EventNoContent:
			if lc.Outcome == OutcomePending {
				lc.Outcome = OutcomeNoContent
			}
		}
	}
	return out
}
