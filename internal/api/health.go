package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthHandler responds with a status check including live registry sizes.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "health"
	const method = "GET"

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"adapters": s.Ads.Types(),
		"windows":  s.Frames.Windows(),
		"units":    s.Units.Len(),
		"ad_units": s.DB.Len(),
	})

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}
