package stats

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/uitrack/uitrack/internal/models"
	"github.com/uitrack/uitrack/internal/storage"
)

func newTestEngine(t *testing.T, events ...*models.TrackingEvent) *Engine {
	t.Helper()
	store := storage.NewInMemoryEventStore()
	for _, ev := range events {
		if err := store.Insert(context.Background(), ev); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}
	return NewEngine(store, zap.NewNop())
}

func ev(component, variant string, action models.Action, ts time.Time) *models.TrackingEvent {
	return &models.TrackingEvent{
		ComponentName: component,
		Variant:       variant,
		Action:        action,
		Timestamp:     ts,
		SessionID:     "s-" + component,
	}
}

func TestBasicStatsGrouping(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	engine := newTestEngine(t,
		ev("Button", "primary", models.ActionClick, base),
		ev("Button", "primary", models.ActionClick, base.Add(time.Minute)),
		ev("Button", "primary", models.ActionHover, base.Add(2*time.Minute)),
		ev("Button", "ghost", models.ActionClick, base.Add(3*time.Minute)),
		ev("Card", "default", models.ActionClick, base.Add(4*time.Minute)),
	)

	result, err := engine.BasicStats(context.Background(), storage.Filter{})
	if err != nil {
		t.Fatalf("BasicStats failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 components, got %d", len(result))
	}

	// Components sorted by total interactions descending.
	if result[0].ComponentName != "Button" || result[0].TotalInteractions != 4 {
		t.Fatalf("unexpected first component: %+v", result[0])
	}
	if result[1].ComponentName != "Card" || result[1].TotalInteractions != 1 {
		t.Fatalf("unexpected second component: %+v", result[1])
	}

	// Variants sorted by interactions descending.
	button := result[0]
	if len(button.Variants) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(button.Variants))
	}
	if button.Variants[0].Variant != "primary" || button.Variants[0].Interactions != 3 {
		t.Fatalf("unexpected first variant: %+v", button.Variants[0])
	}

	// Actions sorted by count descending within the variant.
	primary := button.Variants[0]
	if len(primary.Actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(primary.Actions))
	}
	if primary.Actions[0].Action != models.ActionClick || primary.Actions[0].Count != 2 {
		t.Fatalf("unexpected first action: %+v", primary.Actions[0])
	}
	if !primary.FirstUsed.Equal(base) {
		t.Errorf("firstUsed = %v, want %v", primary.FirstUsed, base)
	}
	if !primary.LastUsed.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("lastUsed = %v, want %v", primary.LastUsed, base.Add(2*time.Minute))
	}
}

func TestBasicStatsTotalMatchesEventCount(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	events := make([]*models.TrackingEvent, 0, 60)
	components := []string{"Button", "Card", "Modal"}
	for i := 0; i < 60; i++ {
		c := components[i%len(components)]
		events = append(events, ev(c, "v", models.Actions[i%len(models.Actions)], base.Add(time.Duration(i)*time.Second)))
	}
	engine := newTestEngine(t, events...)

	result, err := engine.BasicStats(context.Background(), storage.Filter{})
	if err != nil {
		t.Fatalf("BasicStats failed: %v", err)
	}

	var total int64
	for _, cs := range result {
		total += cs.TotalInteractions
		var variantSum int64
		for _, vs := range cs.Variants {
			variantSum += vs.Interactions
			var actionSum int64
			for _, as := range vs.Actions {
				actionSum += as.Count
			}
			if actionSum != vs.Interactions {
				t.Errorf("variant %s/%s: action sum %d != interactions %d", cs.ComponentName, vs.Variant, actionSum, vs.Interactions)
			}
		}
		if variantSum != cs.TotalInteractions {
			t.Errorf("component %s: variant sum %d != total %d", cs.ComponentName, variantSum, cs.TotalInteractions)
		}
	}
	if total != 60 {
		t.Errorf("grand total %d, want 60", total)
	}
}

func TestBasicStatsIdempotent(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	engine := newTestEngine(t,
		ev("Button", "primary", models.ActionClick, base),
		ev("Card", "default", models.ActionHover, base.Add(time.Minute)),
	)

	first, err := engine.BasicStats(context.Background(), storage.Filter{})
	if err != nil {
		t.Fatalf("BasicStats failed: %v", err)
	}
	second, err := engine.BasicStats(context.Background(), storage.Filter{})
	if err != nil {
		t.Fatalf("BasicStats failed: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("result length changed between identical reads")
	}
	for i := range first {
		if first[i].ComponentName != second[i].ComponentName ||
			first[i].TotalInteractions != second[i].TotalInteractions {
			t.Errorf("read %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestStatsByPeriodDayBuckets(t *testing.T) {
	d1 := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)
	engine := newTestEngine(t,
		ev("Button", "primary", models.ActionClick, d1),
		ev("Button", "ghost", models.ActionClick, d1.Add(time.Hour)),
		ev("Card", "default", models.ActionClick, d2),
	)

	buckets, err := engine.StatsByPeriod(context.Background(), storage.Filter{}, PeriodDay, 30)
	if err != nil {
		t.Fatalf("StatsByPeriod failed: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}

	// Most recent bucket first.
	if buckets[0].Period.Day == nil || *buckets[0].Period.Day != 2 {
		t.Fatalf("unexpected first bucket: %+v", buckets[0].Period)
	}
	if buckets[0].Period.Hour != nil {
		t.Errorf("day bucket should omit hour")
	}
	if buckets[1].Count != 2 {
		t.Errorf("expected 2 events on day 1, got %d", buckets[1].Count)
	}
	if buckets[1].UniqueComponentsCount != 1 {
		t.Errorf("expected 1 unique component, got %d", buckets[1].UniqueComponentsCount)
	}
	if buckets[1].UniqueVariantsCount != 2 {
		t.Errorf("expected 2 unique variants, got %d", buckets[1].UniqueVariantsCount)
	}
}

func TestStatsByPeriodHourKeepsZeroHour(t *testing.T) {
	midnight := time.Date(2026, 8, 1, 0, 30, 0, 0, time.UTC)
	engine := newTestEngine(t, ev("Button", "primary", models.ActionClick, midnight))

	buckets, err := engine.StatsByPeriod(context.Background(), storage.Filter{}, PeriodHour, 10)
	if err != nil {
		t.Fatalf("StatsByPeriod failed: %v", err)
	}
	if len(buckets) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(buckets))
	}
	if buckets[0].Period.Hour == nil || *buckets[0].Period.Hour != 0 {
		t.Errorf("hour zero must be present in the key: %+v", buckets[0].Period)
	}
}

func TestStatsByPeriodLimitTruncates(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	events := make([]*models.TrackingEvent, 0, 10)
	for i := 0; i < 10; i++ {
		events = append(events, ev("Button", "primary", models.ActionClick, base.AddDate(0, 0, i)))
	}
	engine := newTestEngine(t, events...)

	buckets, err := engine.StatsByPeriod(context.Background(), storage.Filter{}, PeriodDay, 3)
	if err != nil {
		t.Fatalf("StatsByPeriod failed: %v", err)
	}
	if len(buckets) != 3 {
		t.Fatalf("expected 3 buckets, got %d", len(buckets))
	}
	// Most recent days survive the cut.
	if *buckets[0].Period.Day != 10 || *buckets[2].Period.Day != 8 {
		t.Errorf("unexpected bucket days: %d..%d", *buckets[0].Period.Day, *buckets[2].Period.Day)
	}
}

func TestRealTimeWindows(t *testing.T) {
	now := time.Now().UTC()
	engine := newTestEngine(t,
		&models.TrackingEvent{ComponentName: "Button", Variant: "p", Action: models.ActionClick, Timestamp: now.Add(-10 * time.Minute), SessionID: "s1"},
		&models.TrackingEvent{ComponentName: "Card", Variant: "d", Action: models.ActionClick, Timestamp: now.Add(-20 * time.Minute), SessionID: "s2"},
		&models.TrackingEvent{ComponentName: "Modal", Variant: "d", Action: models.ActionClick, Timestamp: now.Add(-5 * time.Hour), SessionID: "s1"},
		&models.TrackingEvent{ComponentName: "Nav", Variant: "d", Action: models.ActionClick, Timestamp: now.Add(-30 * time.Hour), SessionID: "s3"},
	)

	rt, err := engine.RealTime(context.Background())
	if err != nil {
		t.Fatalf("RealTime failed: %v", err)
	}

	if rt.LastHour.TotalInteractions != 2 {
		t.Errorf("lastHour total = %d, want 2", rt.LastHour.TotalInteractions)
	}
	if rt.LastHour.UniqueComponents != 2 || rt.LastHour.UniqueSessions != 2 {
		t.Errorf("lastHour uniques = %d/%d, want 2/2", rt.LastHour.UniqueComponents, rt.LastHour.UniqueSessions)
	}
	if rt.LastDay.TotalInteractions != 3 {
		t.Errorf("lastDay total = %d, want 3", rt.LastDay.TotalInteractions)
	}
	if rt.LastDay.UniqueSessions != 2 {
		t.Errorf("lastDay sessions = %d, want 2", rt.LastDay.UniqueSessions)
	}

	if len(rt.MinutelyActivity) != 2 {
		t.Fatalf("expected 2 minute points, got %d", len(rt.MinutelyActivity))
	}
	// Minutely series is ascending.
	first, second := rt.MinutelyActivity[0].Period, rt.MinutelyActivity[1].Period
	if first.Hour > second.Hour || (first.Hour == second.Hour && first.Minute > second.Minute) {
		t.Errorf("minutely series not ascending: %+v before %+v", first, second)
	}
}

func TestTopComponentsRanking(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	events := []*models.TrackingEvent{}
	for i := 0; i < 3; i++ {
		events = append(events, ev("Button", "p", models.ActionClick, base.Add(time.Duration(i)*time.Minute)))
	}
	events = append(events, ev("Card", "d", models.ActionClick, base.Add(time.Hour)))
	engine := newTestEngine(t, events...)

	top, err := engine.TopComponents(context.Background(), storage.Filter{}, 10)
	if err != nil {
		t.Fatalf("TopComponents failed: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(top))
	}
	if top[0].ComponentName != "Button" || top[0].Count != 3 {
		t.Errorf("unexpected leader: %+v", top[0])
	}
	if !top[0].LastUsed.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("lastUsed = %v, want %v", top[0].LastUsed, base.Add(2*time.Minute))
	}

	top, err = engine.TopComponents(context.Background(), storage.Filter{}, 1)
	if err != nil {
		t.Fatalf("TopComponents failed: %v", err)
	}
	if len(top) != 1 {
		t.Errorf("expected truncation to 1, got %d", len(top))
	}
}

func TestOverviewSummaryPagination(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	events := make([]*models.TrackingEvent, 0, 25)
	for i := 0; i < 25; i++ {
		events = append(events, ev("Button", "p", models.ActionClick, base.Add(time.Duration(i)*time.Second)))
	}
	engine := newTestEngine(t, events...)

	overview, err := engine.Overview(context.Background(), storage.Filter{}, 10, 2)
	if err != nil {
		t.Fatalf("Overview failed: %v", err)
	}

	if overview.Summary.TotalInteractions != 25 {
		t.Errorf("total = %d, want 25", overview.Summary.TotalInteractions)
	}
	if overview.Summary.TotalPages != 3 {
		t.Errorf("totalPages = %d, want 3", overview.Summary.TotalPages)
	}
	if overview.Summary.CurrentPage != 2 || overview.Summary.ResultsPerPage != 10 {
		t.Errorf("unexpected pagination: %+v", overview.Summary)
	}
	if len(overview.RecentInteractions) != 10 {
		t.Errorf("expected 10 recent interactions, got %d", len(overview.RecentInteractions))
	}
}

func TestComponentDetailsUnknown(t *testing.T) {
	engine := newTestEngine(t,
		ev("Button", "primary", models.ActionClick, time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)),
	)

	details, err := engine.ComponentDetails(context.Background(), "Ghost", storage.Filter{})
	if err != nil {
		t.Fatalf("ComponentDetails failed: %v", err)
	}
	if details != nil {
		t.Fatalf("expected nil for unknown component, got %+v", details)
	}

	details, err = engine.ComponentDetails(context.Background(), "Button", storage.Filter{})
	if err != nil {
		t.Fatalf("ComponentDetails failed: %v", err)
	}
	if details == nil || details.ComponentName != "Button" {
		t.Fatalf("expected Button details, got %+v", details)
	}
	if len(details.Variants) != 1 || details.Variants[0].Variant != "primary" {
		t.Errorf("unexpected variants: %+v", details.Variants)
	}
}
