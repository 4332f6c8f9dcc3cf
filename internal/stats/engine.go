package stats

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/uitrack/uitrack/internal/models"
	"github.com/uitrack/uitrack/internal/storage"
)

// periodScanFactor bounds how many underlying events a period query may
// read: limit buckets * periodScanFactor events. The truncation is a cost
// valve, not an exact cut — counts for very high-volume periods are
// approximate once the scan cap is hit.
const periodScanFactor = 1000

// Engine recomputes every rollup from the raw event log on each read.
// There is no shared aggregate state and no incremental update path, so
// results are always consistent with the append-only log.
type Engine struct {
	store  storage.EventStore
	logger *zap.Logger
}

// NewEngine creates an aggregation engine over the given store.
func NewEngine(store storage.EventStore, logger *zap.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// BasicStats runs the three-stage grouping: (component, variant, action)
// counts collapse to per-variant action lists, which collapse to the
// nested per-component rollup, sorted by total interactions descending.
func (e *Engine) BasicStats(ctx context.Context, f storage.Filter) ([]ComponentStat, error) {
	events, err := e.store.Query(ctx, f, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	return buildComponentStats(events), nil
}

// StatsByPeriod groups events into calendar buckets (UTC), each bucket
// reporting its raw count plus de-duplicated component and
// (component, variant) set sizes, most-recent-bucket-first, truncated to
// limit buckets.
func (e *Engine) StatsByPeriod(ctx context.Context, f storage.Filter, period Period, limit int) ([]PeriodBucket, error) {
	if limit <= 0 {
		limit = 30
	}

	events, err := e.store.Query(ctx, f, limit*periodScanFactor, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	type bucket struct {
		key        PeriodKey
		start      time.Time
		count      int64
		components map[string]struct{}
		variants   map[string]struct{}
	}

	buckets := make(map[time.Time]*bucket)
	for _, ev := range events {
		start := truncatePeriod(ev.Timestamp.UTC(), period)
		b, ok := buckets[start]
		if !ok {
			b = &bucket{
				key:        periodKey(start, period),
				start:      start,
				components: make(map[string]struct{}),
				variants:   make(map[string]struct{}),
			}
			buckets[start] = b
		}
		b.count++
		b.components[ev.ComponentName] = struct{}{}
		b.variants[ev.ComponentName+"\x00"+ev.Variant] = struct{}{}
	}

	ordered := make([]*bucket, 0, len(buckets))
	for _, b := range buckets {
		ordered = append(ordered, b)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].start.After(ordered[j].start)
	})
	if len(ordered) > limit {
		ordered = ordered[:limit]
	}

	result := make([]PeriodBucket, 0, len(ordered))
	for _, b := range ordered {
		result = append(result, PeriodBucket{
			Period:                b.key,
			Count:                 b.count,
			UniqueComponentsCount: len(b.components),
			UniqueVariantsCount:   len(b.variants),
		})
	}
	return result, nil
}

// RealTime reports the trailing one-hour and one-day windows plus the
// per-minute activity series covering the trailing hour.
func (e *Engine) RealTime(ctx context.Context) (*RealTimeStats, error) {
	now := time.Now().UTC()
	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-24 * time.Hour)

	events, err := e.store.Query(ctx, storage.Filter{Start: &dayAgo}, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	var rt RealTimeStats
	dayComponents := make(map[string]struct{})
	daySessions := make(map[string]struct{})
	hourComponents := make(map[string]struct{})
	hourSessions := make(map[string]struct{})
	minutes := make(map[time.Time]int64)

	for _, ev := range events {
		ts := ev.Timestamp.UTC()
		rt.LastDay.TotalInteractions++
		dayComponents[ev.ComponentName] = struct{}{}
		if ev.SessionID != "" {
			daySessions[ev.SessionID] = struct{}{}
		}
		if !ts.Before(hourAgo) {
			rt.LastHour.TotalInteractions++
			hourComponents[ev.ComponentName] = struct{}{}
			if ev.SessionID != "" {
				hourSessions[ev.SessionID] = struct{}{}
			}
			minutes[ts.Truncate(time.Minute)]++
		}
	}

	rt.LastDay.UniqueComponents = len(dayComponents)
	rt.LastDay.UniqueSessions = len(daySessions)
	rt.LastHour.UniqueComponents = len(hourComponents)
	rt.LastHour.UniqueSessions = len(hourSessions)

	keys := make([]time.Time, 0, len(minutes))
	for k := range minutes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	rt.MinutelyActivity = make([]MinuteActivity, 0, len(keys))
	for _, k := range keys {
		rt.MinutelyActivity = append(rt.MinutelyActivity, MinuteActivity{
			Period: MinuteKey{
				Year:   k.Year(),
				Month:  int(k.Month()),
				Day:    k.Day(),
				Hour:   k.Hour(),
				Minute: k.Minute(),
			},
			Count: minutes[k],
		})
	}
	return &rt, nil
}

// TopComponents ranks components by count under the filter, keeping the
// most recent use, truncated to n entries.
func (e *Engine) TopComponents(ctx context.Context, f storage.Filter, n int) ([]TopComponent, error) {
	events, err := e.store.Query(ctx, f, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	byName := make(map[string]*TopComponent)
	for _, ev := range events {
		tc, ok := byName[ev.ComponentName]
		if !ok {
			tc = &TopComponent{ComponentName: ev.ComponentName}
			byName[ev.ComponentName] = tc
		}
		tc.Count++
		if ev.Timestamp.After(tc.LastUsed) {
			tc.LastUsed = ev.Timestamp
		}
	}

	result := make([]TopComponent, 0, len(byName))
	for _, tc := range byName {
		result = append(result, *tc)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].ComponentName < result[j].ComponentName
	})
	if len(result) > n {
		result = result[:n]
	}
	return result, nil
}

// TopActions ranks actions by frequency under the filter.
func (e *Engine) TopActions(ctx context.Context, f storage.Filter) ([]TopAction, error) {
	events, err := e.store.Query(ctx, f, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	counts := make(map[models.Action]int64)
	for _, ev := range events {
		counts[ev.Action]++
	}

	result := make([]TopAction, 0, len(counts))
	for action, count := range counts {
		result = append(result, TopAction{Action: action, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Action < result[j].Action
	})
	return result, nil
}

// Recent returns the paginated newest-first trimmed event view.
func (e *Engine) Recent(ctx context.Context, f storage.Filter, limit, page int) ([]RecentInteraction, error) {
	if limit <= 0 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}

	events, err := e.store.Query(ctx, f, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	result := make([]RecentInteraction, 0, len(events))
	for _, ev := range events {
		result = append(result, RecentInteraction{
			ID:            ev.ID,
			ComponentName: ev.ComponentName,
			Variant:       ev.Variant,
			Action:        ev.Action,
			Timestamp:     ev.Timestamp,
			SessionID:     ev.SessionID,
			URL:           ev.Metadata.URL,
		})
	}
	return result, nil
}

// Overview assembles the composite stats payload: summary, nested
// rollups, a 30-day daily series, both rankings and the recent page. All
// parts are recomputed independently for this request.
func (e *Engine) Overview(ctx context.Context, f storage.Filter, limit, page int) (*Overview, error) {
	if limit <= 0 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}

	total, err := e.store.Count(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}

	basic, err := e.BasicStats(ctx, f)
	if err != nil {
		return nil, err
	}
	daily, err := e.StatsByPeriod(ctx, f, PeriodDay, 30)
	if err != nil {
		return nil, err
	}
	topComponents, err := e.TopComponents(ctx, f, 10)
	if err != nil {
		return nil, err
	}
	topActions, err := e.TopActions(ctx, f)
	if err != nil {
		return nil, err
	}
	recent, err := e.Recent(ctx, f, limit, page)
	if err != nil {
		return nil, err
	}

	totalPages := total / int64(limit)
	if total%int64(limit) != 0 {
		totalPages++
	}

	return &Overview{
		Summary: Summary{
			TotalInteractions: total,
			TotalPages:        totalPages,
			CurrentPage:       page,
			ResultsPerPage:    limit,
		},
		BasicStats:         basic,
		DailyStats:         daily,
		TopComponents:      topComponents,
		TopActions:         topActions,
		RecentInteractions: recent,
	}, nil
}

// ComponentDetails returns the variant/action breakdown for one component
// plus its 30-day daily usage series. Returns nil when the component has
// no recorded events under the filter.
func (e *Engine) ComponentDetails(ctx context.Context, componentName string, f storage.Filter) (*ComponentDetails, error) {
	f.ComponentName = componentName

	basic, err := e.BasicStats(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(basic) == 0 {
		return nil, nil
	}

	daily, err := e.StatsByPeriod(ctx, f, PeriodDay, 30)
	if err != nil {
		return nil, err
	}

	return &ComponentDetails{
		ComponentName: componentName,
		Variants:      basic[0].Variants,
		DailyUsage:    daily,
	}, nil
}

// buildComponentStats performs the three-stage grouping over a flat event
// slice.
func buildComponentStats(events []*models.TrackingEvent) []ComponentStat {
	type actionKey struct {
		component string
		variant   string
		action    models.Action
	}

	// Stage 1: (component, variant, action) -> count/firstUsed/lastUsed.
	actionGroups := make(map[actionKey]*ActionStat)
	for _, ev := range events {
		k := actionKey{ev.ComponentName, ev.Variant, ev.Action}
		as, ok := actionGroups[k]
		if !ok {
			as = &ActionStat{Action: ev.Action, FirstUsed: ev.Timestamp, LastUsed: ev.Timestamp}
			actionGroups[k] = as
		}
		as.Count++
		if ev.Timestamp.Before(as.FirstUsed) {
			as.FirstUsed = ev.Timestamp
		}
		if ev.Timestamp.After(as.LastUsed) {
			as.LastUsed = ev.Timestamp
		}
	}

	// Stage 2: collapse up to (component, variant).
	type variantKey struct {
		component string
		variant   string
	}
	variantGroups := make(map[variantKey]*VariantStat)
	for k, as := range actionGroups {
		vk := variantKey{k.component, k.variant}
		vs, ok := variantGroups[vk]
		if !ok {
			vs = &VariantStat{Variant: k.variant, FirstUsed: as.FirstUsed, LastUsed: as.LastUsed}
			variantGroups[vk] = vs
		}
		vs.Interactions += as.Count
		vs.Actions = append(vs.Actions, *as)
		if as.FirstUsed.Before(vs.FirstUsed) {
			vs.FirstUsed = as.FirstUsed
		}
		if as.LastUsed.After(vs.LastUsed) {
			vs.LastUsed = as.LastUsed
		}
	}

	// Stage 3: collapse up to component.
	componentGroups := make(map[string]*ComponentStat)
	for vk, vs := range variantGroups {
		sort.Slice(vs.Actions, func(i, j int) bool {
			if vs.Actions[i].Count != vs.Actions[j].Count {
				return vs.Actions[i].Count > vs.Actions[j].Count
			}
			return vs.Actions[i].Action < vs.Actions[j].Action
		})
		cs, ok := componentGroups[vk.component]
		if !ok {
			cs = &ComponentStat{ComponentName: vk.component}
			componentGroups[vk.component] = cs
		}
		cs.TotalInteractions += vs.Interactions
		cs.Variants = append(cs.Variants, *vs)
	}

	result := make([]ComponentStat, 0, len(componentGroups))
	for _, cs := range componentGroups {
		sort.Slice(cs.Variants, func(i, j int) bool {
			if cs.Variants[i].Interactions != cs.Variants[j].Interactions {
				return cs.Variants[i].Interactions > cs.Variants[j].Interactions
			}
			return cs.Variants[i].Variant < cs.Variants[j].Variant
		})
		result = append(result, *cs)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TotalInteractions != result[j].TotalInteractions {
			return result[i].TotalInteractions > result[j].TotalInteractions
		}
		return result[i].ComponentName < result[j].ComponentName
	})
	return result
}

func truncatePeriod(t time.Time, period Period) time.Time {
	switch period {
	case PeriodHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case PeriodMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

func periodKey(start time.Time, period Period) PeriodKey {
	key := PeriodKey{Year: start.Year(), Month: int(start.Month())}
	switch period {
	case PeriodHour:
		day, hour := start.Day(), start.Hour()
		key.Day, key.Hour = &day, &hour
	case PeriodMonth:
		// year and month only
	default:
		day := start.Day()
		key.Day = &day
	}
	return key
}
