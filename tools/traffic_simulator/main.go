package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/patrickwarner/adslot/internal/observability"
)

var (
	server    string
	pageViews int
	conc      int
	sspSlots  int
	zoneCSV   string
	site      string
	wid       string
	nativery  bool
	height    int
	stats     bool
	debug     bool
	label     string
)

var logger *zap.Logger

var httpClient *http.Client

const statsInterval = 5 * time.Second

var (
	countSlots     uint64
	countRender    uint64
	countNoContent uint64
	countErrors    uint64
	countResized   uint64
)

type slotReq struct {
	Type         string         `json:"type"`
	Unit         string         `json:"unit,omitempty"`
	PageViewID   string         `json:"pageViewId"`
	CanonicalURL string         `json:"canonicalUrl"`
	Referrer     string         `json:"referrer"`
	Data         map[string]any `json:"data"`
}

type slotResp struct {
	WindowID  string `json:"windowId"`
	Outcome   string `json:"outcome"`
	Error     string `json:"error"`
	Lifecycle []struct {
		Name   string `json:"name"`
		Height int    `json:"height"`
	} `json:"lifecycle"`
}

func main() {
	flag.StringVar(&server, "server", "http://localhost:8787", "slot host base URL")
	flag.IntVar(&pageViews, "pageviews", 100, "page views to simulate")
	flag.IntVar(&conc, "concurrency", 10, "page views in flight")
	flag.IntVar(&sspSlots, "ssp-slots", 3, "ssp slots per page view")
	flag.StringVar(&zoneCSV, "zones", "1001,1002,1003", "comma-separated ssp zone ids, cycled over slots")
	flag.StringVar(&site, "site", "https://example.com/article", "canonical URL of the simulated page")
	flag.StringVar(&wid, "wid", "demo-widget", "nativery widget id")
	flag.BoolVar(&nativery, "nativery", true, "add a nativery slot to every page view")
	flag.IntVar(&height, "height", 320, "height reported by the nativery widget")
	flag.BoolVar(&stats, "stats", false, "print aggregated stats periodically")
	flag.BoolVar(&debug, "debug", false, "enable verbose debug logs")
	flag.StringVar(&label, "label", "", "label to identify this run")
	flag.Parse()

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	var err error
	logger, err = observability.InitLoggerWithLevel(level, "traffic-simulator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	httpClient = &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			DialContext:         (&net.Dialer{Timeout: 2 * time.Second}).DialContext,
			MaxIdleConns:        conc * (sspSlots + 1),
			MaxIdleConnsPerHost: conc * (sspSlots + 1),
			IdleConnTimeout:     30 * time.Second,
		},
	}

	zones := strings.Split(zoneCSV, ",")

	done := make(chan struct{})
	if stats {
		go func() {
			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					printStats()
				case <-done:
					return
				}
			}
		}()
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < conc; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				simulatePageView(zones)
			}
		}()
	}
	for i := 0; i < pageViews; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(done)

	printStats()
}

// simulatePageView issues every slot of one page at once, the way a page
// renders all its ad slots in the same tick.
func simulatePageView(zones []string) {
	pv := uuid.NewString()
	var wg sync.WaitGroup

	for i := 0; i < sspSlots; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			zone, _ := strconv.Atoi(strings.TrimSpace(zones[i%len(zones)]))
			pos := map[string]any{"id": fmt.Sprintf("ssp-%d", i), "width": 300, "height": 250, "zoneId": zone}
			b, _ := json.Marshal(pos)
			sendSlot(slotReq{Type: "ssp", PageViewID: pv, CanonicalURL: site, Data: map[string]any{"position": string(b)}})
		}(i)
	}

	if nativery {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, ok := sendSlot(slotReq{Type: "nativery", PageViewID: pv, CanonicalURL: site, Data: map[string]any{"wid": wid}})
			if ok {
				widgetCreated(resp.WindowID)
			}
		}()
	}
	wg.Wait()
}

func sendSlot(req slotReq) (slotResp, bool) {
	atomic.AddUint64(&countSlots, 1)
	var out slotResp

	body, err := json.Marshal(req)
	if err != nil {
		logger.Warn("marshal slot", zap.Error(err))
		atomic.AddUint64(&countErrors, 1)
		return out, false
	}
	resp, err := httpClient.Post(server+"/slot", "application/json", bytes.NewReader(body))
	if err != nil {
		logger.Warn("slot request", zap.String("type", req.Type), zap.Error(err))
		atomic.AddUint64(&countErrors, 1)
		return out, false
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil || json.Unmarshal(data, &out) != nil {
		logger.Warn("slot response", zap.String("type", req.Type), zap.Int("status", resp.StatusCode))
		atomic.AddUint64(&countErrors, 1)
		return out, false
	}
	if resp.StatusCode != http.StatusOK {
		logger.Debug("slot failed", zap.String("type", req.Type), zap.Int("status", resp.StatusCode), zap.String("error", out.Error))
		atomic.AddUint64(&countErrors, 1)
		return out, false
	}

	switch out.Outcome {
	case "render":
		atomic.AddUint64(&countRender, 1)
	case "no_content":
		atomic.AddUint64(&countNoContent, 1)
	}
	logger.Debug("slot", zap.String("type", req.Type), zap.String("window_id", out.WindowID), zap.String("outcome", out.Outcome))
	return out, true
}

func widgetCreated(windowID string) {
	body, _ := json.Marshal(map[string]int{"height": height})
	url := fmt.Sprintf("%s/windows/%s/events/amp-widgetCreated", server, windowID)
	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		logger.Warn("widget event", zap.String("window_id", windowID), zap.Error(err))
		atomic.AddUint64(&countErrors, 1)
		return
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		atomic.AddUint64(&countErrors, 1)
		return
	}
	atomic.AddUint64(&countResized, 1)
}

func printStats() {
	slots := atomic.LoadUint64(&countSlots)
	render := atomic.LoadUint64(&countRender)
	nc := atomic.LoadUint64(&countNoContent)
	errs := atomic.LoadUint64(&countErrors)
	resized := atomic.LoadUint64(&countResized)
	fill := 0.0
	if render+nc > 0 {
		fill = float64(render) / float64(render+nc)
	}
	logger.Info("stats", zap.String("run", label), zap.Uint64("slots", slots), zap.Uint64("render", render), zap.Uint64("no_content", nc), zap.Uint64("errors", errs), zap.Uint64("resized", resized), zap.Float64("fill_rate", fill))
}
