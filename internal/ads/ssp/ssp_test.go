package ssp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/patrickwarner/adslot/internal/adconfig"
	"github.com/patrickwarner/adslot/internal/config"
	"github.com/patrickwarner/adslot/internal/frame"
	"github.com/patrickwarner/adslot/internal/master"
	"github.com/patrickwarner/adslot/internal/scriptloader"
	"github.com/patrickwarner/adslot/internal/sssp"
)

const commonPosition = `{ "id": "id-1", "width": "200", "height": "200", "zoneId": "1234" }`

type fakeLoader struct {
	mu    sync.Mutex
	loads []string
	err   error
}

func (f *fakeLoader) LoadScript(_ context.Context, doc *frame.Document, url string) error {
	f.mu.Lock()
	f.loads = append(f.loads, url)
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	doc.AppendScript(url)
	return nil
}

func (f *fakeLoader) WriteScript(context.Context, *frame.Document, string) {}

func (f *fakeLoader) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.loads)
}

type fakeVendor struct {
	mu       sync.Mutex
	configs  []sssp.SiteInfo
	calls    [][]sssp.Zone
	writes   []string
	ads      func(zones []sssp.Zone) []sssp.AdResult
	err      error
	writeErr error
}

func (f *fakeVendor) Config(info sssp.SiteInfo) {
	f.mu.Lock()
	f.configs = append(f.configs, info)
	f.mu.Unlock()
}

func (f *fakeVendor) GetAds(_ context.Context, zones []sssp.Zone) ([]sssp.AdResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, zones)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.ads == nil {
		return []sssp.AdResult{}, nil
	}
	return f.ads(zones), nil
}

func (f *fakeVendor) WriteAd(positionID string, c sssp.Container) error {
	f.mu.Lock()
	f.writes = append(f.writes, positionID)
	f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	c.SetHTML("<ad " + positionID + ">")
	return nil
}

func (f *fakeVendor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type harness struct {
	loader    *fakeLoader
	vendor    *fakeVendor
	factories int
	mu        sync.Mutex
	adapter   *Adapter
}

func newHarness(t *testing.T) *harness {
	h := &harness{loader: &fakeLoader{}, vendor: &fakeVendor{}}
	h.adapter = New(h.loader, func(context.Context) (sssp.Library, error) {
		h.mu.Lock()
		h.factories++
		h.mu.Unlock()
		return h.vendor, nil
	}, "", zaptest.NewLogger(t))
	return h
}

func respondAll(typ string) func([]sssp.Zone) []sssp.AdResult {
	return func(zones []sssp.Zone) []sssp.AdResult {
		out := make([]sssp.AdResult, 0, len(zones))
		for _, z := range zones {
			out = append(out, sssp.AdResult{ID: z.ID, Type: typ})
		}
		return out
	}
}

func newSlot(unit *master.Unit, id string) (*frame.Window, *frame.Recorder) {
	host := frame.NewRecorder(nil)
	ctx := frame.Context{CanonicalURL: "https://test.com", PageViewID: "pv"}
	return frame.NewWindow(id, Type, ctx, host, frame.NewPage("pv"), unit), host
}

func newUnit(expected int) *master.Unit {
	return master.NewUnit("pv/ssp", master.Options{ExpectedSlots: expected, AggregationWindow: time.Second}, nil)
}

func slotConfig(position string) adconfig.Config {
	return adconfig.Config{"type": Type, "width": "200", "height": "200", "position": position}
}

func TestRunMissingPosition(t *testing.T) {
	h := newHarness(t)
	unit := newUnit(1)
	w, host := newSlot(unit, "w")

	err := h.adapter.Run(context.Background(), w, adconfig.Config{"type": Type})

	var verr *adconfig.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "position", verr.Field)
	assert.Empty(t, w.Document.Containers())
	assert.Zero(t, h.loader.count())
	assert.Zero(t, Positions(unit).Len())
	assert.Empty(t, host.Events())
}

func TestRunMalformedPosition(t *testing.T) {
	h := newHarness(t)
	unit := newUnit(1)
	w, host := newSlot(unit, "w")

	for _, position := range []string{`{"id": `, `"just a string"`, `42`} {
		err := h.adapter.Run(context.Background(), w, slotConfig(position))
		var verr *adconfig.ValidationError
		require.ErrorAs(t, err, &verr, position)
		assert.Equal(t, "position", verr.Field)
	}
	assert.Empty(t, w.Document.Containers())
	assert.Zero(t, unit.Joined(ComputeKey))
	assert.Empty(t, host.Events())
}

func TestRunCreatesContainerAndQueuesPosition(t *testing.T) {
	h := newHarness(t)
	unit := newUnit(1)
	w, _ := newSlot(unit, "w")

	require.NoError(t, h.adapter.Run(context.Background(), w, slotConfig(commonPosition)))

	containers := w.Document.Containers()
	require.Len(t, containers, 1)
	assert.Equal(t, "id-1", containers[0].ID())
	assert.Equal(t, []Position{{ID: "id-1", Width: "200", Height: "200", ZoneID: "1234"}}, Positions(unit).Snapshot())
}

func TestRunConfiguresVendorAndRequestsQueue(t *testing.T) {
	h := newHarness(t)
	unit := newUnit(1)
	w, host := newSlot(unit, "w")

	require.NoError(t, h.adapter.Run(context.Background(), w, slotConfig(commonPosition)))

	assert.Equal(t, []string{ScriptURL}, h.loader.loads)
	assert.Equal(t, []sssp.SiteInfo{{Site: "https://test.com"}}, h.vendor.configs)
	require.Len(t, h.vendor.calls, 1)
	assert.Equal(t, []sssp.Zone{{ID: "id-1", Width: "200", Height: "200", ZoneID: "1234"}}, h.vendor.calls[0])
	// The vendor answered with nothing for id-1.
	assert.Equal(t, 1, host.Count(frame.LifecycleNoContent))
	assert.Zero(t, host.Count(frame.LifecycleRenderStart))
}

func TestRunEmptyQueueSkipsVendor(t *testing.T) {
	h := newHarness(t)
	unit := newUnit(1)
	w, host := newSlot(unit, "w")

	require.NoError(t, h.adapter.Run(context.Background(), w, slotConfig(`{}`)))

	v, err := unit.Compute(context.Background(), ComputeKey, nil)
	require.NoError(t, err)
	res := v.(*Resolution)
	assert.NotNil(t, res.Ads)
	assert.Empty(t, res.Ads)
	assert.Zero(t, h.loader.count())
	assert.Zero(t, h.vendor.callCount())
	assert.Zero(t, h.factories)
	assert.Empty(t, w.Document.Containers())
	assert.Equal(t, 1, host.Count(frame.LifecycleNoContent))
	assert.Zero(t, host.Count(frame.LifecycleRenderStart))
}

func TestRunEmptyArrayPosition(t *testing.T) {
	h := newHarness(t)
	w, host := newSlot(newUnit(1), "w")

	require.NoError(t, h.adapter.Run(context.Background(), w, slotConfig(`[]`)))
	assert.Equal(t, 1, host.Count(frame.LifecycleNoContent))
}

func TestRunArrayUsesFirstPosition(t *testing.T) {
	h := newHarness(t)
	unit := newUnit(1)
	w, _ := newSlot(unit, "w")

	require.NoError(t, h.adapter.Run(context.Background(), w, slotConfig(`[{"id":"a","zoneId":1},{"id":"b"}]`)))
	assert.Equal(t, []Position{{ID: "a", ZoneID: "1"}}, Positions(unit).Snapshot())
}

func TestRunDecodedPositionValue(t *testing.T) {
	h := newHarness(t)
	unit := newUnit(1)
	w, _ := newSlot(unit, "w")
	cfg := adconfig.Config{"type": Type, "position": map[string]any{"id": "obj", "width": 300.0}}

	require.NoError(t, h.adapter.Run(context.Background(), w, cfg))
	assert.Equal(t, []Position{{ID: "obj", Width: "300"}}, Positions(unit).Snapshot())
}

func TestRunErrorAndEmptyResultsSignalNoContent(t *testing.T) {
	for _, typ := range []string{sssp.TypeError, sssp.TypeEmpty} {
		t.Run(typ, func(t *testing.T) {
			h := newHarness(t)
			h.vendor.ads = func([]sssp.Zone) []sssp.AdResult {
				return []sssp.AdResult{{ID: "id-1", Type: typ}, {ID: "id-2", Type: sssp.TypeEmpty}}
			}
			w, host := newSlot(newUnit(1), "w")

			require.NoError(t, h.adapter.Run(context.Background(), w, slotConfig(commonPosition)))

			assert.Equal(t, 1, host.Count(frame.LifecycleNoContent))
			assert.Zero(t, host.Count(frame.LifecycleRenderStart))
			assert.Empty(t, h.vendor.writes)
		})
	}
}

func TestRunIframeRenders(t *testing.T) {
	h := newHarness(t)
	h.vendor.ads = respondAll(sssp.TypeIframe)
	w, host := newSlot(newUnit(1), "w")

	require.NoError(t, h.adapter.Run(context.Background(), w, slotConfig(commonPosition)))

	assert.Equal(t, 1, host.Count(frame.LifecycleRenderStart))
	assert.Zero(t, host.Count(frame.LifecycleNoContent))
	assert.Equal(t, []string{"id-1"}, h.vendor.writes)
	c, ok := w.Document.Container("id-1")
	require.True(t, ok)
	assert.Equal(t, "<ad id-1>", c.HTML())
	assert.Equal(t, frame.OutcomeRender, host.Outcome())
}

func TestRunWriteAdFailure(t *testing.T) {
	h := newHarness(t)
	h.vendor.ads = respondAll(sssp.TypeIframe)
	h.vendor.writeErr = sssp.ErrUnsupportedType
	w, host := newSlot(newUnit(1), "w")

	err := h.adapter.Run(context.Background(), w, slotConfig(commonPosition))

	assert.ErrorIs(t, err, sssp.ErrUnsupportedType)
	assert.Equal(t, 1, host.Count(frame.LifecycleRenderStart))
	assert.Zero(t, host.Count(frame.LifecycleNoContent))
}

func TestRunScriptFailureSignalsNoContentEverywhere(t *testing.T) {
	h := newHarness(t)
	h.loader.err = scriptloader.ErrBadStatus
	unit := newUnit(2)
	w1, host1 := newSlot(unit, "w1")
	w2, host2 := newSlot(unit, "w2")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, w := range []*frame.Window{w1, w2} {
		wg.Add(1)
		go func(i int, w *frame.Window) {
			defer wg.Done()
			errs[i] = h.adapter.Run(context.Background(), w, slotConfig(fmt.Sprintf(`{"id":"p%d"}`, i)))
		}(i, w)
	}
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, scriptloader.ErrBadStatus)
	}
	assert.Equal(t, 1, host1.Count(frame.LifecycleNoContent))
	assert.Equal(t, 1, host2.Count(frame.LifecycleNoContent))
	assert.Equal(t, 1, h.loader.count())
	assert.Zero(t, h.vendor.callCount())
}

func TestRunVendorFailureMemoized(t *testing.T) {
	h := newHarness(t)
	h.vendor.err = errors.New("vendor unavailable")
	unit := newUnit(1)

	w1, host1 := newSlot(unit, "w1")
	err := h.adapter.Run(context.Background(), w1, slotConfig(`{"id":"a"}`))
	assert.ErrorContains(t, err, "get ads")
	assert.Equal(t, 1, host1.Count(frame.LifecycleNoContent))

	w2, host2 := newSlot(unit, "w2")
	err = h.adapter.Run(context.Background(), w2, slotConfig(`{"id":"b"}`))
	assert.ErrorContains(t, err, "vendor unavailable")
	assert.Equal(t, 1, host2.Count(frame.LifecycleNoContent))
	assert.Equal(t, 1, h.vendor.callCount())
}

func TestSiblingSlotsShareOneVendorCall(t *testing.T) {
	h := newHarness(t)
	h.vendor.ads = respondAll(sssp.TypeIframe)
	const slots = 4
	unit := newUnit(slots)

	hosts := make([]*frame.Recorder, slots)
	var wg sync.WaitGroup
	for i := 0; i < slots; i++ {
		w, host := newSlot(unit, fmt.Sprintf("w%d", i))
		hosts[i] = host
		wg.Add(1)
		go func(i int, w *frame.Window) {
			defer wg.Done()
			assert.NoError(t, h.adapter.Run(context.Background(), w, slotConfig(fmt.Sprintf(`{"id":"pos-%d"}`, i))))
		}(i, w)
	}
	wg.Wait()

	require.Equal(t, 1, h.vendor.callCount())
	assert.Len(t, h.vendor.calls[0], slots)
	assert.Equal(t, 1, h.loader.count())
	assert.Equal(t, 1, h.factories)
	for _, host := range hosts {
		assert.Equal(t, 1, host.Count(frame.LifecycleRenderStart))
		assert.Zero(t, host.Count(frame.LifecycleNoContent))
	}
	assert.Len(t, h.vendor.writes, slots)
}

func TestStaggeredSiblingsWithDefaultConfigShareOneVendorCall(t *testing.T) {
	cfg := config.Load()
	units := master.NewRegistry(cfg.UnitTTL, master.Options{
		ExpectedSlots:     cfg.DefaultExpectedSlots,
		AggregationWindow: cfg.AggregationWindow,
	}, nil)
	unit := units.Unit("pv/ssp", master.Options{})

	h := newHarness(t)
	h.vendor.ads = respondAll(sssp.TypeIframe)

	ids := []string{"a", "b", "c"}
	hosts := make([]*frame.Recorder, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		w, host := newSlot(unit, "w-"+id)
		hosts[i] = host
		wg.Add(1)
		go func(w *frame.Window, id string) {
			defer wg.Done()
			assert.NoError(t, h.adapter.Run(context.Background(), w, slotConfig(fmt.Sprintf(`{"id":%q,"zoneId":1}`, id))))
		}(w, id)
		time.Sleep(2 * time.Millisecond)
	}
	wg.Wait()

	require.Equal(t, 1, h.vendor.callCount())
	assert.Len(t, h.vendor.calls[0], len(ids))
	for i, host := range hosts {
		assert.Equal(t, frame.OutcomeRender, host.Outcome(), "slot %s", ids[i])
	}
}

func TestLateSlotGetsMemoizedResultAndNoContent(t *testing.T) {
	h := newHarness(t)
	h.vendor.ads = respondAll(sssp.TypeIframe)
	unit := newUnit(1)

	w1, host1 := newSlot(unit, "w1")
	require.NoError(t, h.adapter.Run(context.Background(), w1, slotConfig(`{"id":"early"}`)))
	w2, host2 := newSlot(unit, "w2")
	require.NoError(t, h.adapter.Run(context.Background(), w2, slotConfig(`{"id":"late"}`)))

	assert.Equal(t, 1, h.vendor.callCount())
	assert.Equal(t, 1, host1.Count(frame.LifecycleRenderStart))
	assert.Equal(t, 1, host2.Count(frame.LifecycleNoContent))
	assert.Zero(t, host2.Count(frame.LifecycleRenderStart))
	assert.Equal(t, 2, Positions(unit).Len())
}

func TestDuplicatePositionInSameWindow(t *testing.T) {
	h := newHarness(t)
	h.vendor.ads = respondAll(sssp.TypeIframe)
	unit := newUnit(1)
	w, host := newSlot(unit, "w")

	require.NoError(t, h.adapter.Run(context.Background(), w, slotConfig(commonPosition)))
	err := h.adapter.Run(context.Background(), w, slotConfig(commonPosition))

	assert.ErrorIs(t, err, frame.ErrDuplicateContainer)
	assert.Equal(t, 1, Positions(unit).Len())
	assert.Equal(t, 1, host.Count(frame.LifecycleNoContent))
	assert.Equal(t, 1, host.Count(frame.LifecycleRenderStart))
}
