// Package sssp is a client for the Seznam SSP ad resolution API. One Client
// resolves every zone of an ad unit in a single request and then writes each
// slot's ad into its container.
package sssp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/adslot/internal/observability"
)

var (
	// ErrUnknownPosition is returned by WriteAd for a position GetAds did not return.
	ErrUnknownPosition = errors.New("unknown position")
	// ErrUnsupportedType is returned by WriteAd for a result it cannot render.
	ErrUnsupportedType = errors.New("unsupported ad type")
)

// Result types returned by the vendor.
const (
	TypeIframe = "iframe"
	TypeCode   = "code"
	TypeEmpty  = "empty"
	TypeError  = "error"
)

// Zone is one ad position submitted for resolution.
type Zone struct {
	ID     string `json:"id"`
	Width  string `json:"width,omitempty"`
	Height string `json:"height,omitempty"`
	ZoneID string `json:"zoneId,omitempty"`
}

// AdResult is the vendor's answer for one zone.
type AdResult struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Data   string `json:"data,omitempty"`
	Width  Size   `json:"width,omitempty"`
	Height Size   `json:"height,omitempty"`
}

// Size is a pixel dimension. The vendor sends it either as a number or as a
// numeric string; values that are neither decode as zero.
type Size int

// UnmarshalJSON implements json.Unmarshaler.
func (s *Size) UnmarshalJSON(b []byte) error {
	v := strings.TrimSpace(strings.Trim(string(b), `"`))
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n < 0 {
		*s = 0
		return nil
	}
	*s = Size(n)
	return nil
}

// Filled reports whether the result carries an ad.
func (r AdResult) Filled() bool {
	return r.Type != TypeEmpty && r.Type != TypeError
}

// SiteInfo identifies the site ads are requested for.
type SiteInfo struct {
	Site string `json:"site"`
}

// Container receives rendered ad markup.
type Container interface {
	ID() string
	SetHTML(markup string)
}

// Library is the vendor contract the ssp adapter relies on.
type Library interface {
	Config(info SiteInfo)
	GetAds(ctx context.Context, zones []Zone) ([]AdResult, error)
	WriteAd(positionID string, c Container) error
}

var _ Library = (*Client)(nil)

type adsRequest struct {
	Site  string `json:"site"`
	Zones []Zone `json:"zones"`
}

type adsResponse struct {
	Ads []AdResult `json:"ads"`
}

// Client calls the vendor HTTP API.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    observability.MetricsRegistry

	mu      sync.RWMutex
	site    SiteInfo
	results map[string]AdResult
}

// NewClient creates a client for endpoint.
func NewClient(endpoint string, timeout time.Duration, logger *zap.Logger, metrics observability.MetricsRegistry) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    metrics,
		results:    make(map[string]AdResult),
	}
}

// Config sets the site sent with every request.
func (c *Client) Config(info SiteInfo) {
	c.mu.Lock()
	c.site = info
	c.mu.Unlock()
}

// GetAds resolves zones in one request. Returned results are kept for WriteAd.
func (c *Client) GetAds(ctx context.Context, zones []Zone) ([]AdResult, error) {
	c.mu.RLock()
	site := c.site
	c.mu.RUnlock()

	ctx, span := observability.GetTracer("sssp").Start(ctx, "sssp.GetAds",
		trace.WithAttributes(
			attribute.String("sssp.site", site.Site),
			attribute.Int("sssp.zones", len(zones)),
		))
	defer span.End()

	ads, err := c.call(ctx, adsRequest{Site: site.Site, Zones: zones})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get ads failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("sssp.ads", len(ads)))

	c.mu.Lock()
	for _, ad := range ads {
		c.results[ad.ID] = ad
	}
	c.mu.Unlock()
	return ads, nil
}

func (c *Client) call(ctx context.Context, body adsRequest) ([]AdResult, error) {
	start := time.Now()
	outcome := "success"
	defer func() {
		c.metrics.RecordVendorLatency(time.Since(start))
		c.metrics.IncrementVendorRequests(outcome)
	}()

	reqBody, err := json.Marshal(body)
	if err != nil {
		outcome = "failure"
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		outcome = "failure"
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		outcome = "failure"
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		outcome = "failure"
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(msg))
	}

	var parsed adsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		outcome = "failure"
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Ads == nil {
		parsed.Ads = []AdResult{}
	}
	return parsed.Ads, nil
}

// Result returns the stored result for positionID.
func (c *Client) Result(positionID string) (AdResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[positionID]
	return r, ok
}

// WriteAd renders the stored result for positionID into container.
func (c *Client) WriteAd(positionID string, container Container) error {
	r, ok := c.Result(positionID)
	if !ok {
		return fmt.Errorf("write ad %s: %w", positionID, ErrUnknownPosition)
	}
	markup, err := Markup(r)
	if err != nil {
		return fmt.Errorf("write ad %s: %w", positionID, err)
	}
	container.SetHTML(markup)
	return nil
}
