package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/adslot/internal/middleware"
)

// ScriptSource returns vendor script bodies, from its cache when possible.
type ScriptSource interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// allowedScript reports whether src is one of the configured vendor scripts.
func (s *Server) allowedScript(src string) bool {
	if src == "" {
		return false
	}
	return src == s.Config.NativeryScriptURL || src == s.Config.SSPScriptURL
}

// ScriptHandler handles GET /scripts?src=: it serves a configured vendor
// script from the loader cache so pages keep loading while the CDN is down.
func (s *Server) ScriptHandler(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromRequest(r, s.Logger)
	start := time.Now()
	const endpoint = "scripts"
	const method = "GET"
	finish := func(status int) {
		s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	}

	src := r.URL.Query().Get("src")
	if s.Scripts == nil || !s.allowedScript(src) {
		finish(http.StatusNotFound)
		http.Error(w, "unknown script", http.StatusNotFound)
		return
	}

	body, err := s.Scripts.Fetch(r.Context(), src)
	if err != nil {
		logger.Warn("serve script", zap.String("src", src), zap.Error(err))
		finish(http.StatusBadGateway)
		http.Error(w, "script unavailable", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/javascript")
	if ttl := s.Config.ScriptCacheTTL; ttl > 0 {
		w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(ttl.Seconds())))
	}
	finish(http.StatusOK)
	_, _ = w.Write(body)
}
