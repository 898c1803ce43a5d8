package scriptloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/patrickwarner/adslot/internal/db"
	"github.com/patrickwarner/adslot/internal/frame"
	"github.com/patrickwarner/adslot/internal/observability"
)

func scriptServer(t *testing.T, status int, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte("window.vendor = {};"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func redisCache(t *testing.T) *db.RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return db.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestLoadScriptAppendsAfterFetch(t *testing.T) {
	var hits int32
	srv := scriptServer(t, http.StatusOK, &hits)
	metrics := &observability.MockMetricsRegistry{}
	l := NewHTTPLoader(time.Second, time.Hour, nil, zaptest.NewLogger(t), metrics)

	doc := frame.NewDocument()
	require.NoError(t, l.LoadScript(context.Background(), doc, srv.URL+"/ssp.js"))

	assert.Equal(t, []string{srv.URL + "/ssp.js"}, doc.Scripts())
	assert.Equal(t, int32(1), hits)
	assert.Equal(t, 1, metrics.Count("script_loads", "fetched"))
}

func TestLoadScriptBadStatus(t *testing.T) {
	var hits int32
	srv := scriptServer(t, http.StatusNotFound, &hits)
	metrics := &observability.MockMetricsRegistry{}
	l := NewHTTPLoader(time.Second, time.Hour, nil, zaptest.NewLogger(t), metrics)

	doc := frame.NewDocument()
	err := l.LoadScript(context.Background(), doc, srv.URL+"/missing.js")

	assert.ErrorIs(t, err, ErrBadStatus)
	assert.Empty(t, doc.Scripts())
	assert.Equal(t, 1, metrics.Count("script_loads", "failed"))
}

func TestFetchUsesCache(t *testing.T) {
	var hits int32
	srv := scriptServer(t, http.StatusOK, &hits)
	metrics := &observability.MockMetricsRegistry{}
	l := NewHTTPLoader(time.Second, time.Hour, redisCache(t), zaptest.NewLogger(t), metrics)

	for i := 0; i < 3; i++ {
		body, err := l.Fetch(context.Background(), srv.URL+"/a.js")
		require.NoError(t, err)
		assert.Equal(t, "window.vendor = {};", string(body))
	}
	assert.Equal(t, int32(1), hits)
	assert.Equal(t, 2, metrics.Count("script_loads", "cached"))
}

func TestLoadScriptFromCacheWhileOriginDown(t *testing.T) {
	var hits int32
	srv := scriptServer(t, http.StatusOK, &hits)
	cache := redisCache(t)
	src := srv.URL + "/ssp.js"

	warm := NewHTTPLoader(time.Second, time.Hour, cache, zaptest.NewLogger(t), nil)
	_, err := warm.Fetch(context.Background(), src)
	require.NoError(t, err)
	srv.Close()

	metrics := &observability.MockMetricsRegistry{}
	l := NewHTTPLoader(time.Second, time.Hour, cache, zaptest.NewLogger(t), metrics)
	doc := frame.NewDocument()
	require.NoError(t, l.LoadScript(context.Background(), doc, src))

	body, err := l.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "window.vendor = {};", string(body))
	assert.Equal(t, []string{src}, doc.Scripts())
	assert.Equal(t, 2, metrics.Count("script_loads", "cached"))
}

func TestFetchConcurrentSharesRequest(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()
	l := NewHTTPLoader(2*time.Second, time.Hour, nil, zaptest.NewLogger(t), nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Fetch(context.Background(), srv.URL)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestWriteScriptAppendsImmediately(t *testing.T) {
	var hits int32
	srv := scriptServer(t, http.StatusInternalServerError, &hits)
	metrics := &observability.MockMetricsRegistry{}
	l := NewHTTPLoader(time.Second, time.Hour, nil, zap.NewNop(), metrics)

	doc := frame.NewDocument()
	l.WriteScript(context.Background(), doc, srv.URL+"/natamp.js")

	assert.Equal(t, []string{srv.URL + "/natamp.js"}, doc.Scripts())
	assert.Eventually(t, func() bool {
		return metrics.Count("script_loads", "failed") == 1
	}, time.Second, 10*time.Millisecond)
}
