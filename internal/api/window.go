package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/patrickwarner/adslot/internal/middleware"
)

const maxEventBody = 64 << 10

// WindowEventHandler handles POST /windows/{id}/events/{name}. The body is the
// event detail, delivered as JSON to the window's subscribers.
func (s *Server) WindowEventHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "window_event"
	const method = "POST"
	finish := func(status int) {
		s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	}

	logger := middleware.LoggerFromRequest(r, s.Logger)
	vars := mux.Vars(r)
	win, ok := s.Frames.Window(vars["id"])
	if !ok {
		finish(http.StatusNotFound)
		http.Error(w, "unknown window", http.StatusNotFound)
		return
	}
	name := vars["name"]

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		finish(http.StatusBadRequest)
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	defer func() {
		_ = r.Body.Close()
	}()

	delivered, err := win.Events.Dispatch(name, body)
	if err != nil {
		logger.Warn("dispatch event", zap.String("window_id", win.ID), zap.String("event", name), zap.Error(err))
		s.Metrics.IncrementEvent("bad_event")
		finish(http.StatusBadRequest)
		http.Error(w, fmt.Sprintf("invalid %s detail", name), http.StatusBadRequest)
		return
	}
	s.Metrics.IncrementEvent(name)

	resp := snapshot(win)
	resp.Delivered = &delivered
	finish(http.StatusOK)
	writeJSON(w, http.StatusOK, resp)
}

// WindowHandler handles GET /windows/{id}.
func (s *Server) WindowHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "window"
	const method = "GET"

	win, ok := s.Frames.Window(mux.Vars(r)["id"])
	if !ok {
		s.Metrics.IncrementRequests(endpoint, method, "404")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "unknown window", http.StatusNotFound)
		return
	}
	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writeJSON(w, http.StatusOK, snapshot(win))
}

// CloseWindowHandler handles DELETE /windows/{id}, releasing the window's
// subscriptions.
func (s *Server) CloseWindowHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "window"
	const method = "DELETE"

	if !s.Frames.CloseWindow(mux.Vars(r)["id"]) {
		s.Metrics.IncrementRequests(endpoint, method, "404")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "unknown window", http.StatusNotFound)
		return
	}
	s.Metrics.IncrementRequests(endpoint, method, "204")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	w.WriteHeader(http.StatusNoContent)
}
