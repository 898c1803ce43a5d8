package sssp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/patrickwarner/adslot/internal/observability"
)

type testContainer struct {
	id   string
	html string
}

func (c *testContainer) ID() string        { return c.id }
func (c *testContainer) SetHTML(s string) { c.html = s }

func vendorServer(t *testing.T, handler func(req adsRequest) (int, any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var req adsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		status, body := handler(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetAdsSendsSiteAndZones(t *testing.T) {
	var got adsRequest
	srv := vendorServer(t, func(req adsRequest) (int, any) {
		got = req
		return http.StatusOK, adsResponse{Ads: []AdResult{
			{ID: "id-1", Type: TypeIframe, Data: "https://ads.example/f?a=1&b=2", Width: 300, Height: 250},
			{ID: "id-2", Type: TypeEmpty},
		}}
	})
	metrics := &observability.MockMetricsRegistry{}
	c := NewClient(srv.URL, time.Second, zaptest.NewLogger(t), metrics)
	c.Config(SiteInfo{Site: "https://test.com"})

	ads, err := c.GetAds(context.Background(), []Zone{
		{ID: "id-1", Width: "300", Height: "250", ZoneID: "1234"},
		{ID: "id-2", ZoneID: "99"},
	})
	require.NoError(t, err)
	require.Len(t, ads, 2)

	assert.Equal(t, "https://test.com", got.Site)
	assert.Equal(t, "1234", got.Zones[0].ZoneID)
	assert.Equal(t, 1, metrics.Count("vendor_requests", "success"))

	r, ok := c.Result("id-1")
	require.True(t, ok)
	assert.True(t, r.Filled())
	r, _ = c.Result("id-2")
	assert.False(t, r.Filled())
}

func TestGetAdsAcceptsStringSizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ads":[
			{"id":"a","type":"iframe","data":"https://ads.example/a","width":"300","height":"250"},
			{"id":"b","type":"iframe","data":"https://ads.example/b","width":728,"height":"auto"},
			{"id":"c","type":"empty","width":null}
		]}`))
	}))
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, time.Second, zaptest.NewLogger(t), nil)

	ads, err := c.GetAds(context.Background(), []Zone{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	require.NoError(t, err)
	require.Len(t, ads, 3)
	assert.Equal(t, Size(300), ads[0].Width)
	assert.Equal(t, Size(250), ads[0].Height)
	assert.Equal(t, Size(728), ads[1].Width)
	assert.Zero(t, ads[1].Height)
	assert.Zero(t, ads[2].Width)

	out := &testContainer{id: "a"}
	require.NoError(t, c.WriteAd("a", out))
	assert.Contains(t, out.html, `width="300"`)
	assert.Contains(t, out.html, `height="250"`)
}

func TestGetAdsHTTPError(t *testing.T) {
	srv := vendorServer(t, func(adsRequest) (int, any) {
		return http.StatusBadGateway, map[string]string{"error": "upstream"}
	})
	metrics := &observability.MockMetricsRegistry{}
	c := NewClient(srv.URL, time.Second, zaptest.NewLogger(t), metrics)

	_, err := c.GetAds(context.Background(), []Zone{{ID: "a"}})
	assert.ErrorContains(t, err, "http 502")
	assert.Equal(t, 1, metrics.Count("vendor_requests", "failure"))
}

func TestGetAdsMissingAdsIsEmpty(t *testing.T) {
	srv := vendorServer(t, func(adsRequest) (int, any) { return http.StatusOK, map[string]any{} })
	c := NewClient(srv.URL, time.Second, zaptest.NewLogger(t), nil)

	ads, err := c.GetAds(context.Background(), []Zone{{ID: "a"}})
	require.NoError(t, err)
	assert.NotNil(t, ads)
	assert.Empty(t, ads)
}

func TestWriteAd(t *testing.T) {
	srv := vendorServer(t, func(adsRequest) (int, any) {
		return http.StatusOK, adsResponse{Ads: []AdResult{
			{ID: "frame", Type: TypeIframe, Data: `https://ads.example/f?x="y"`, Width: 300, Height: 250},
			{ID: "code", Type: TypeCode, Data: `<div class="ad">hi</div>`},
			{ID: "odd", Type: "video"},
		}}
	})
	c := NewClient(srv.URL, time.Second, zaptest.NewLogger(t), nil)
	_, err := c.GetAds(context.Background(), nil)
	require.NoError(t, err)

	frame := &testContainer{id: "frame"}
	require.NoError(t, c.WriteAd("frame", frame))
	assert.Contains(t, frame.html, `src="https://ads.example/f?x=&#34;y&#34;"`)
	assert.Contains(t, frame.html, `width="300" height="250"`)

	code := &testContainer{id: "code"}
	require.NoError(t, c.WriteAd("code", code))
	assert.Equal(t, `<div class="ad">hi</div>`, code.html)

	assert.ErrorIs(t, c.WriteAd("odd", &testContainer{}), ErrUnsupportedType)
	assert.ErrorIs(t, c.WriteAd("missing", &testContainer{}), ErrUnknownPosition)
}

func TestMarkupIframeWithoutSource(t *testing.T) {
	_, err := Markup(AdResult{ID: "a", Type: TypeIframe})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}
