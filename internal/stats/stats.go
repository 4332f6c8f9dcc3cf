package stats

import (
	"time"

	"github.com/uitrack/uitrack/internal/models"
)

// Period selects the calendar bucket size for period statistics.
type Period string

const (
	PeriodHour  Period = "hour"
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// ParsePeriod maps a caller-supplied string onto a Period, defaulting to
// day buckets.
func ParsePeriod(s string) Period {
	switch Period(s) {
	case PeriodHour, PeriodDay, PeriodMonth:
		return Period(s)
	default:
		return PeriodDay
	}
}

// ActionStat is the innermost rollup level: one action on one variant.
type ActionStat struct {
	Action    models.Action `json:"action"`
	Count     int64         `json:"count"`
	FirstUsed time.Time     `json:"firstUsed"`
	LastUsed  time.Time     `json:"lastUsed"`
}

// VariantStat collapses action-level groups up to one variant.
type VariantStat struct {
	Variant      string       `json:"variant"`
	Interactions int64        `json:"interactions"`
	Actions      []ActionStat `json:"actions"`
	FirstUsed    time.Time    `json:"firstUsed"`
	LastUsed     time.Time    `json:"lastUsed"`
}

// ComponentStat is the outermost rollup: component -> variants -> actions.
// Derived on every read, never persisted or cached server-side.
type ComponentStat struct {
	ComponentName     string        `json:"componentName"`
	TotalInteractions int64         `json:"totalInteractions"`
	Variants          []VariantStat `json:"variants"`
}

// PeriodKey identifies one calendar-aligned bucket. Day and Hour are
// pointers so month buckets omit the day and day buckets omit the hour
// while hour zero still serializes.
type PeriodKey struct {
	Year  int  `json:"year"`
	Month int  `json:"month"`
	Day   *int `json:"day,omitempty"`
	Hour  *int `json:"hour,omitempty"`
}

// PeriodBucket is one time bucket with de-duplicated dimension counts.
type PeriodBucket struct {
	Period                PeriodKey `json:"period"`
	Count                 int64     `json:"count"`
	UniqueComponentsCount int       `json:"uniqueComponentsCount"`
	UniqueVariantsCount   int       `json:"uniqueVariantsCount"`
}

// WindowStats summarizes a trailing real-time window.
type WindowStats struct {
	TotalInteractions int64 `json:"totalInteractions"`
	UniqueComponents  int   `json:"uniqueComponents"`
	UniqueSessions    int   `json:"uniqueSessions"`
}

// MinuteKey identifies one minute of the trailing hour.
type MinuteKey struct {
	Year   int `json:"year"`
	Month  int `json:"month"`
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// MinuteActivity is one point of the per-minute activity series.
type MinuteActivity struct {
	Period MinuteKey `json:"period"`
	Count  int64     `json:"count"`
}

// RealTimeStats reports the two fixed trailing windows plus the minutely
// series for the trailing hour.
type RealTimeStats struct {
	LastHour         WindowStats      `json:"lastHour"`
	LastDay          WindowStats      `json:"lastDay"`
	MinutelyActivity []MinuteActivity `json:"minutelyActivity"`
}

// TopComponent is one entry of the top-components ranking.
type TopComponent struct {
	ComponentName string    `json:"componentName"`
	Count         int64     `json:"count"`
	LastUsed      time.Time `json:"lastUsed"`
}

// TopAction is one entry of the action-frequency ranking.
type TopAction struct {
	Action models.Action `json:"action"`
	Count  int64         `json:"count"`
}

// Summary carries the filtered total and pagination bookkeeping.
type Summary struct {
	TotalInteractions int64 `json:"totalInteractions"`
	TotalPages        int64 `json:"totalPages"`
	CurrentPage       int   `json:"currentPage"`
	ResultsPerPage    int   `json:"resultsPerPage"`
}

// RecentInteraction is the trimmed event view returned with stats.
type RecentInteraction struct {
	ID            string        `json:"id"`
	ComponentName string        `json:"componentName"`
	Variant       string        `json:"variant"`
	Action        models.Action `json:"action"`
	Timestamp     time.Time     `json:"timestamp"`
	SessionID     string        `json:"sessionId,omitempty"`
	URL           string        `json:"url,omitempty"`
}

// Overview is the composite payload of the stats endpoint.
type Overview struct {
	Summary            Summary             `json:"summary"`
	BasicStats         []ComponentStat     `json:"basicStats"`
	DailyStats         []PeriodBucket      `json:"dailyStats"`
	TopComponents      []TopComponent      `json:"topComponents"`
	TopActions         []TopAction         `json:"topActions"`
	RecentInteractions []RecentInteraction `json:"recentInteractions"`
}

// ComponentDetails is the per-component breakdown with its daily series.
type ComponentDetails struct {
	ComponentName string         `json:"componentName"`
	Variants      []VariantStat  `json:"variants"`
	DailyUsage    []PeriodBucket `json:"dailyUsage"`
}
