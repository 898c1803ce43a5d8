// Package scriptloader injects vendor scripts into slot documents and keeps
// a fetched copy of each script so repeated loads do not hit the CDN.
package scriptloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/patrickwarner/adslot/internal/frame"
	"github.com/patrickwarner/adslot/internal/observability"
)

// ErrBadStatus is returned when the script host answers with a non-200 status.
var ErrBadStatus = errors.New("unexpected script status")

const maxScriptSize = 4 << 20

// Loader adds scripts to slot documents.
type Loader interface {
	// LoadScript fetches url and appends the script tag once it is available.
	LoadScript(ctx context.Context, doc *frame.Document, url string) error
	// WriteScript appends the script tag immediately and fetches in the
	// background. Failures are logged only.
	WriteScript(ctx context.Context, doc *frame.Document, url string)
}

// Cache stores fetched script bodies.
type Cache interface {
	GetScript(ctx context.Context, url string) ([]byte, bool, error)
	PutScript(ctx context.Context, url string, body []byte, ttl time.Duration) error
}

// HTTPLoader fetches scripts over HTTP. Concurrent fetches of the same URL
// share one request; bodies are kept in the optional cache for cacheTTL.
type HTTPLoader struct {
	httpClient *http.Client
	cache      Cache
	cacheTTL   time.Duration
	logger     *zap.Logger
	metrics    observability.MetricsRegistry
	group      singleflight.Group
}

// NewHTTPLoader creates a loader. cache may be nil.
func NewHTTPLoader(timeout, cacheTTL time.Duration, cache Cache, logger *zap.Logger, metrics observability.MetricsRegistry) *HTTPLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &HTTPLoader{
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache,
		cacheTTL:   cacheTTL,
		logger:     logger,
		metrics:    metrics,
	}
}

// LoadScript implements Loader.
func (l *HTTPLoader) LoadScript(ctx context.Context, doc *frame.Document, url string) error {
	if _, err := l.Fetch(ctx, url); err != nil {
		return fmt.Errorf("load script %s: %w", url, err)
	}
	doc.AppendScript(url)
	return nil
}

// WriteScript implements Loader.
func (l *HTTPLoader) WriteScript(ctx context.Context, doc *frame.Document, url string) {
	doc.AppendScript(url)
	bg := context.WithoutCancel(ctx)
	go func() {
		if _, err := l.Fetch(bg, url); err != nil {
			l.logger.Warn("script prefetch failed", zap.String("url", url), zap.Error(err))
		}
	}()
}

// Fetch returns the script body, from the cache when possible.
func (l *HTTPLoader) Fetch(ctx context.Context, url string) ([]byte, error) {
	if l.cache != nil {
		body, ok, err := l.cache.GetScript(ctx, url)
		if err != nil {
			l.logger.Warn("script cache read failed", zap.String("url", url), zap.Error(err))
		} else if ok {
			l.metrics.IncrementScriptLoads("cached")
			return body, nil
		}
	}

	v, err, _ := l.group.Do(url, func() (interface{}, error) {
		return l.download(context.WithoutCancel(ctx), url)
	})
	if err != nil {
		l.metrics.IncrementScriptLoads("failed")
		return nil, err
	}
	body := v.([]byte)
	l.metrics.IncrementScriptLoads("fetched")

	if l.cache != nil {
		if err := l.cache.PutScript(ctx, url, body, l.cacheTTL); err != nil {
			l.logger.Warn("script cache write failed", zap.String("url", url), zap.Error(err))
		}
	}
	return body, nil
}

func (l *HTTPLoader) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			l.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScriptSize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
