package models

import (
	"time"
)

// Action classifies the kind of UI interaction that was recorded.
type Action string

const (
	ActionClick  Action = "click"
	ActionHover  Action = "hover"
	ActionFocus  Action = "focus"
	ActionBlur   Action = "blur"
	ActionChange Action = "change"
	ActionSubmit Action = "submit"
	ActionLoad   Action = "load"
	ActionScroll Action = "scroll"
	ActionResize Action = "resize"
	ActionCustom Action = "custom"
)

// Actions lists every valid action value. ActionClick is the default when
// a tracked event arrives without one.
var Actions = []Action{
	ActionClick, ActionHover, ActionFocus, ActionBlur, ActionChange,
	ActionSubmit, ActionLoad, ActionScroll, ActionResize, ActionCustom,
}

// ValidAction reports whether a is one of the known action values.
func ValidAction(a Action) bool {
	for _, v := range Actions {
		if v == a {
			return true
		}
	}
	return false
}

// Dimension holds a width/height pair reported by the client.
type Dimension struct {
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// Metadata is the bounded free-form context attached to an event.
// CustomData is capped by its serialized size, not by key count.
type Metadata struct {
	UserAgent        string                 `json:"userAgent,omitempty"`
	ScreenResolution Dimension              `json:"screenResolution,omitempty"`
	Viewport         Dimension              `json:"viewport,omitempty"`
	URL              string                 `json:"url,omitempty"`
	Referrer         string                 `json:"referrer,omitempty"`
	CustomData       map[string]interface{} `json:"customData,omitempty"`
}

// Performance holds optional client-side timing measurements in
// milliseconds.
type Performance struct {
	LoadTime        float64 `json:"loadTime,omitempty"`
	RenderTime      float64 `json:"renderTime,omitempty"`
	InteractionTime float64 `json:"interactionTime,omitempty"`
}

// Location holds optional geo/timezone strings, either reported by the
// client or filled in at ingest time from the caller's IP.
type Location struct {
	Country  string `json:"country,omitempty"`
	Region   string `json:"region,omitempty"`
	City     string `json:"city,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// TrackingEvent is one recorded UI interaction. Events are created once by
// ingestion and never updated; the store is append-only from this
// subsystem's perspective.
type TrackingEvent struct {
	ID            string      `json:"id"`
	ComponentName string      `json:"componentName"`
	Variant       string      `json:"variant"`
	Action        Action      `json:"action"`
	Timestamp     time.Time   `json:"timestamp"`
	SessionID     string      `json:"sessionId,omitempty"`
	UserID        string      `json:"userId,omitempty"`
	Metadata      Metadata    `json:"metadata,omitempty"`
	Performance   Performance `json:"performance,omitempty"`
	Location      Location    `json:"location,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}
