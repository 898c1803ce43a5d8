package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/adslot/internal/adconfig"
	"github.com/patrickwarner/adslot/internal/analytics"
	"github.com/patrickwarner/adslot/internal/frame"
	"github.com/patrickwarner/adslot/internal/middleware"
	"github.com/patrickwarner/adslot/internal/observability"
)

var tracer = otel.Tracer("adslot")

const maxSlotBody = 1 << 20

// SlotRequest is the body of POST /slot: the slot type, the host context and
// the slot attributes passed to the adapter.
type SlotRequest struct {
	Type         string          `json:"type"`
	Unit         string          `json:"unit,omitempty"`
	PageViewID   string          `json:"pageViewId,omitempty"`
	CanonicalURL string          `json:"canonicalUrl"`
	Referrer     string          `json:"referrer"`
	Location     string          `json:"location,omitempty"`
	Data         adconfig.Config `json:"data"`
}

// SlotResponse reports what a slot did: the host calls it made and the
// document it built.
type SlotResponse struct {
	WindowID   string                 `json:"windowId"`
	PageViewID string                 `json:"pageViewId"`
	Outcome    string                 `json:"outcome"`
	Lifecycle  []frame.LifecycleEvent `json:"lifecycle"`
	Document   frame.DocumentSnapshot `json:"document"`
	Delivered  *int                   `json:"delivered,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

func decodeSlotRequest(r *http.Request) (*SlotRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSlotBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	defer func() {
		_ = r.Body.Close()
	}()

	var req SlotRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return &req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// snapshot describes the current state of a window.
func snapshot(win *frame.Window) SlotResponse {
	resp := SlotResponse{
		WindowID:   win.ID,
		PageViewID: win.Context.PageViewID,
		Outcome:    frame.OutcomePending,
		Lifecycle:  []frame.LifecycleEvent{},
		Document:   win.Document.Snapshot(),
	}
	if rec, ok := win.Host.(*frame.Recorder); ok {
		resp.Outcome = rec.Outcome()
		if events := rec.Events(); len(events) > 0 {
			resp.Lifecycle = events
		}
	}
	return resp
}

// lifecycleEventTypes maps host hook names to analytics event types.
var lifecycleEventTypes = map[string]string{
	frame.LifecycleResize:      analytics.EventResize,
	frame.LifecycleRenderStart: analytics.EventRenderStart,
	frame.LifecycleNoContent:   analytics.EventNoContent,
}

// SlotHandler handles POST /slot: it opens a window for the slot, runs the
// adapter for the slot type and reports the resulting lifecycle.
func (s *Server) SlotHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "SlotHandler",
		trace.WithAttributes(
			attribute.String("http.method", "POST"),
			attribute.String("http.route", "/slot"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "slot"
	const method = "POST"
	finish := func(status int) {
		s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	}

	req, err := decodeSlotRequest(r)
	if err != nil {
		logger.Warn("decode request", zap.Error(err), zap.String("event_type", "slot_request"))
		finish(http.StatusBadRequest)
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		finish(http.StatusBadRequest)
		http.Error(w, "type required", http.StatusBadRequest)
		return
	}
	if !s.Ads.Has(req.Type) {
		logger.Warn("unknown slot type", zap.String("type", req.Type))
		finish(http.StatusNotFound)
		http.Error(w, "unknown slot type", http.StatusNotFound)
		return
	}

	pageViewID := req.PageViewID
	if pageViewID == "" {
		pageViewID = uuid.NewString()
	}
	unitName := req.Unit
	if unitName == "" {
		unitName = req.Type
	}
	unit := s.unitFor(pageViewID, unitName)

	cfg := req.Data.Clone()
	if _, ok := cfg["type"]; !ok {
		cfg["type"] = req.Type
	}

	base := analytics.SlotEvent{Adapter: req.Type, UnitID: unit.ID(), PageViewID: pageViewID}
	var win *frame.Window
	host := frame.NewRecorder(func(e frame.LifecycleEvent) {
		ev := base
		ev.EventType = lifecycleEventTypes[e.Name]
		ev.WindowID = win.ID
		ev.Height = int32(e.Height)
		s.record(ev)
	})
	win = s.Frames.Open(req.Type, frame.Context{
		CanonicalURL: req.CanonicalURL,
		Referrer:     req.Referrer,
		PageViewID:   pageViewID,
		Location:     req.Location,
	}, host, unit)
	base.WindowID = win.ID

	span.SetAttributes(
		attribute.String("slot.type", req.Type),
		attribute.String("slot.window_id", win.ID),
		attribute.String("slot.unit", unit.ID()),
	)

	ev := base
	ev.EventType = analytics.EventSlotRequest
	s.record(ev)

	runErr := s.Ads.Run(ctx, win, cfg)

	var verr *adconfig.ValidationError
	if errors.As(runErr, &verr) {
		logger.Warn("slot validation failed",
			zap.String("type", req.Type),
			zap.String("field", verr.Field),
			zap.String("reason", verr.Reason))
		s.Metrics.IncrementValidationErrors(req.Type)
		ev := base
		ev.EventType = analytics.EventValidationError
		ev.Detail = verr.Error()
		s.record(ev)
		s.Frames.CloseWindow(win.ID)

		resp := snapshot(win)
		resp.Error = verr.Error()
		finish(http.StatusBadRequest)
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	resp := snapshot(win)
	s.Metrics.IncrementSlotOutcome(req.Type, resp.Outcome)

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "adapter failed")
		logger.Error("slot adapter failed",
			zap.String("type", req.Type),
			zap.String("window_id", win.ID),
			zap.Error(runErr))
		resp.Error = runErr.Error()
		finish(http.StatusBadGateway)
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}

	if observability.ShouldSample(observability.GetSamplingRate()) {
		logger.Info("slot served",
			zap.String("type", req.Type),
			zap.String("window_id", win.ID),
			zap.String("unit", unit.ID()),
			zap.String("outcome", resp.Outcome))
	}
	finish(http.StatusOK)
	writeJSON(w, http.StatusOK, resp)
}
