package validate

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/uitrack/uitrack/internal/models"
)

// Field length and size limits for incoming tracking events.
const (
	MaxComponentNameLen = 100
	MaxVariantLen       = 50
	MaxSessionIDLen     = 100
	MaxUserAgentLen     = 500
	MaxURLLen           = 500
	MaxReferrerLen      = 500
	MaxDimension        = 10000
	MaxCustomDataBytes  = 1000
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// FieldError describes a single violated constraint on an input field.
type FieldError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationErrors carries every constraint violation found on a request,
// not just the first one.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "invalid input"
	}
	fields := make([]string, 0, len(v))
	for _, fe := range v {
		fields = append(fields, fe.Field)
	}
	return fmt.Sprintf("invalid input: %s", strings.Join(fields, ", "))
}

// TrackingEvent checks a candidate event against every field constraint
// and normalizes it in place: names are trimmed and a missing action
// defaults to click. It returns nil when the event is acceptable.
func TrackingEvent(ev *models.TrackingEvent) error {
	var errs ValidationErrors

	ev.ComponentName = strings.TrimSpace(ev.ComponentName)
	ev.Variant = strings.TrimSpace(ev.Variant)
	ev.SessionID = strings.TrimSpace(ev.SessionID)

	errs = append(errs, checkName("componentName", ev.ComponentName, MaxComponentNameLen)...)
	errs = append(errs, checkName("variant", ev.Variant, MaxVariantLen)...)

	if ev.Action == "" {
		ev.Action = models.ActionClick
	} else if !models.ValidAction(ev.Action) {
		errs = append(errs, FieldError{
			Field:   "action",
			Message: "action is not a valid action type",
			Value:   string(ev.Action),
		})
	}

	if len(ev.SessionID) > MaxSessionIDLen {
		errs = append(errs, FieldError{
			Field:   "sessionId",
			Message: fmt.Sprintf("sessionId must not exceed %d characters", MaxSessionIDLen),
		})
	}

	errs = append(errs, checkMetadata(&ev.Metadata)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func checkName(field, value string, max int) ValidationErrors {
	var errs ValidationErrors
	if value == "" {
		errs = append(errs, FieldError{
			Field:   field,
			Message: field + " is required",
			Value:   value,
		})
		return errs
	}
	if len(value) > max {
		errs = append(errs, FieldError{
			Field:   field,
			Message: fmt.Sprintf("%s must be between 1 and %d characters", field, max),
			Value:   value,
		})
	}
	if !namePattern.MatchString(value) {
		errs = append(errs, FieldError{
			Field:   field,
			Message: field + " may only contain letters, numbers, hyphens and underscores",
			Value:   value,
		})
	}
	return errs
}

func checkMetadata(md *models.Metadata) ValidationErrors {
	var errs ValidationErrors

	if len(md.UserAgent) > MaxUserAgentLen {
		errs = append(errs, FieldError{
			Field:   "metadata.userAgent",
			Message: fmt.Sprintf("userAgent must not exceed %d characters", MaxUserAgentLen),
		})
	}
	if md.URL != "" {
		if len(md.URL) > MaxURLLen {
			errs = append(errs, FieldError{
				Field:   "metadata.url",
				Message: fmt.Sprintf("url must not exceed %d characters", MaxURLLen),
			})
		}
		if u, err := url.Parse(md.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, FieldError{
				Field:   "metadata.url",
				Message: "url must be a valid absolute URL",
				Value:   md.URL,
			})
		}
	}
	if len(md.Referrer) > MaxReferrerLen {
		errs = append(errs, FieldError{
			Field:   "metadata.referrer",
			Message: fmt.Sprintf("referrer must not exceed %d characters", MaxReferrerLen),
		})
	}

	errs = append(errs, checkDimension("metadata.screenResolution", md.ScreenResolution)...)
	errs = append(errs, checkDimension("metadata.viewport", md.Viewport)...)

	if md.CustomData != nil {
		// Oversized payloads are rejected outright, never truncated.
		raw, err := json.Marshal(md.CustomData)
		if err != nil {
			errs = append(errs, FieldError{
				Field:   "metadata.customData",
				Message: "customData is not serializable",
			})
		} else if len(raw) > MaxCustomDataBytes {
			errs = append(errs, FieldError{
				Field:   "metadata.customData",
				Message: fmt.Sprintf("customData must not exceed %d bytes when serialized", MaxCustomDataBytes),
			})
		}
	}

	return errs
}

func checkDimension(field string, d models.Dimension) ValidationErrors {
	var errs ValidationErrors
	if d.Width != 0 && (d.Width < 1 || d.Width > MaxDimension) {
		errs = append(errs, FieldError{
			Field:   field + ".width",
			Message: fmt.Sprintf("width must be between 1 and %d", MaxDimension),
			Value:   d.Width,
		})
	}
	if d.Height != 0 && (d.Height < 1 || d.Height > MaxDimension) {
		errs = append(errs, FieldError{
			Field:   field + ".height",
			Message: fmt.Sprintf("height must be between 1 and %d", MaxDimension),
			Value:   d.Height,
		})
	}
	return errs
}
