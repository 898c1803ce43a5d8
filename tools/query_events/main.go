package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/adslot/internal/analytics"
	"github.com/patrickwarner/adslot/internal/config"
	"github.com/patrickwarner/adslot/internal/observability"
)

var (
	windowID   = flag.String("window", "", "window ID")
	pageViewID = flag.String("pageview", "", "page view ID")
	eventType  = flag.String("type", "", "event type (slot_request, validation_error, render_start, no_content, resize)")
	since      = flag.Duration("since", time.Hour, "only events newer than this when no window or page view is given")
	limit      = flag.Int("limit", 1000, "maximum events to read")
	raw        = flag.Bool("raw", false, "print events instead of per-window lifecycles")
	asJSON     = flag.Bool("json", false, "print JSON")
	dsn        = flag.String("dsn", "", "ClickHouse DSN")
)

var eventTypes = []string{
	analytics.EventSlotRequest,
	analytics.EventValidationError,
	analytics.EventRenderStart,
	analytics.EventNoContent,
	analytics.EventResize,
}

func main() {
	flag.Parse()

	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if *eventType != "" && !known(*eventType) {
		fmt.Fprintf(os.Stderr, "unknown event type %q, want one of %s\n", *eventType, strings.Join(eventTypes, ", "))
		os.Exit(1)
	}
	if *dsn == "" {
		cfg := config.Load()
		*dsn = cfg.ClickHouseDSN
	}

	a, err := analytics.InitClickHouse(*dsn, 10, 2, 5*time.Minute, 1*time.Minute)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect clickhouse: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	filter := analytics.EventFilter{
		WindowID:   *windowID,
		PageViewID: *pageViewID,
		EventType:  *eventType,
		Limit:      *limit,
	}
	if filter.WindowID == "" && filter.PageViewID == "" && *since > 0 {
		filter.Since = time.Now().Add(-*since)
	}

	events, err := a.QueryEvents(context.Background(), filter)
	if err != nil {
		logger.Fatal("query events", zap.Error(err))
	}

	if *raw {
		if *asJSON {
			encode(events)
			return
		}
		printEvents(events)
		return
	}

	lifecycles := analytics.Lifecycles(events)
	if *asJSON {
		encode(lifecycles)
		return
	}
	printLifecycles(lifecycles)
}

func known(t string) bool {
	for _, e := range eventTypes {
		if e == t {
			return true
		}
	}
	return false
}

func encode(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
}

func printEvents(events []analytics.SlotEvent) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer func() { _ = tw.Flush() }()
	fmt.Fprintln(tw, "TIME\tWINDOW\tADAPTER\tEVENT\tPOSITION\tHEIGHT\tDETAIL")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			ev.Timestamp.Format(time.RFC3339Nano), ev.WindowID, ev.Adapter, ev.EventType, ev.PositionID, ev.Height, ev.Detail)
	}
}

func printLifecycles(lifecycles []analytics.WindowLifecycle) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer func() { _ = tw.Flush() }()
	fmt.Fprintln(tw, "STARTED\tWINDOW\tADAPTER\tUNIT\tPOSITION\tOUTCOME\tHEIGHT\tLIFECYCLE")
	outcomes := make(map[string]int)
	for _, lc := range lifecycles {
		outcomes[lc.Outcome]++
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			lc.Started.Format(time.RFC3339), lc.WindowID, lc.Adapter, lc.UnitID, lc.PositionID, lc.Outcome, lc.Height, strings.Join(lc.Events, " > "))
	}
	fmt.Fprintf(tw, "\n%d windows: render=%d no_content=%d invalid=%d pending=%d\n", len(lifecycles),
		outcomes[analytics.OutcomeRender], outcomes[analytics.OutcomeNoContent], outcomes[analytics.OutcomeInvalid], outcomes[analytics.OutcomePending])
}
