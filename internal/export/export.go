package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uitrack/uitrack/internal/apperr"
	"github.com/uitrack/uitrack/internal/models"
	"github.com/uitrack/uitrack/internal/storage"
)

// Format selects the export artifact encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat maps a caller-supplied string onto a Format. An empty
// value defaults to CSV; anything else outside csv/json is rejected.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

// fieldOrder fixes the flattened column order for both formats.
var fieldOrder = []string{
	"id", "componentName", "variant", "action", "timestamp",
	"sessionId", "userId", "userAgent",
	"screenWidth", "screenHeight", "viewportWidth", "viewportHeight",
	"url", "referrer",
	"loadTime", "renderTime", "interactionTime",
	"country", "region", "city", "timezone",
	"createdAt",
}

// Artifact is one materialized export file. The caller owns its lifetime
// and must call Release exactly once on every path, success or failure.
type Artifact struct {
	Path        string
	Format      Format
	RecordCount int
	SizeBytes   int64
	CreatedAt   time.Time

	logger   *zap.Logger
	released sync.Once
}

// Release removes the artifact file. Safe to call more than once; a file
// already gone is not an error.
func (a *Artifact) Release() error {
	var err error
	a.released.Do(func() {
		if rmErr := os.Remove(a.Path); rmErr != nil && !os.IsNotExist(rmErr) {
			a.logger.Warn("failed to remove export artifact",
				zap.String("path", a.Path),
				zap.Error(rmErr),
			)
			err = rmErr
			return
		}
		a.logger.Debug("export artifact released", zap.String("path", a.Path))
	})
	return err
}

// Exporter materializes filtered event snapshots as CSV or JSON files.
type Exporter struct {
	store      storage.EventStore
	dir        string
	maxRecords int
	logger     *zap.Logger
}

// NewExporter creates an exporter writing artifacts under dir. An empty
// dir falls back to the OS temp directory.
func NewExporter(store storage.EventStore, dir string, maxRecords int, logger *zap.Logger) *Exporter {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Exporter{store: store, dir: dir, maxRecords: maxRecords, logger: logger}
}

// Export queries matching events newest-first, capped at the configured
// maximum, and writes them to a fresh artifact file. A filter matching no
// events yields a not-found error and no file.
func (e *Exporter) Export(ctx context.Context, f storage.Filter, format Format) (*Artifact, error) {
	events, err := e.store.Query(ctx, f, e.maxRecords, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load events for export: %w", err)
	}
	if len(events) == 0 {
		return nil, apperr.NotFound("no data to export for the specified criteria")
	}

	name := fmt.Sprintf("component_tracking_%s_%s.%s",
		time.Now().UTC().Format("20060102T150405"), uuid.New().String(), format)
	path := filepath.Join(e.dir, name)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}

	switch format {
	case FormatJSON:
		err = writeJSON(file, events)
	default:
		err = writeCSV(file, events)
	}
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write export file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to close export file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	e.logger.Info("export artifact created",
		zap.String("path", path),
		zap.String("format", string(format)),
		zap.Int("records", len(events)),
		zap.Int64("size_bytes", info.Size()),
	)

	return &Artifact{
		Path:        path,
		Format:      format,
		RecordCount: len(events),
		SizeBytes:   info.Size(),
		CreatedAt:   time.Now().UTC(),
		logger:      e.logger,
	}, nil
}

// flatten projects one event onto the fixed column order.
func flatten(ev *models.TrackingEvent) map[string]string {
	row := map[string]string{
		"id":            ev.ID,
		"componentName": ev.ComponentName,
		"variant":       ev.Variant,
		"action":        string(ev.Action),
		"timestamp":     ev.Timestamp.UTC().Format(time.RFC3339),
		"sessionId":     ev.SessionID,
		"userId":        ev.UserID,
		"userAgent":     ev.Metadata.UserAgent,
		"url":           ev.Metadata.URL,
		"referrer":      ev.Metadata.Referrer,
		"country":       ev.Location.Country,
		"region":        ev.Location.Region,
		"city":          ev.Location.City,
		"timezone":      ev.Location.Timezone,
		"createdAt":     ev.CreatedAt.UTC().Format(time.RFC3339),
	}
	if ev.Metadata.ScreenResolution.Width > 0 {
		row["screenWidth"] = strconv.Itoa(ev.Metadata.ScreenResolution.Width)
	}
	if ev.Metadata.ScreenResolution.Height > 0 {
		row["screenHeight"] = strconv.Itoa(ev.Metadata.ScreenResolution.Height)
	}
	if ev.Metadata.Viewport.Width > 0 {
		row["viewportWidth"] = strconv.Itoa(ev.Metadata.Viewport.Width)
	}
	if ev.Metadata.Viewport.Height > 0 {
		row["viewportHeight"] = strconv.Itoa(ev.Metadata.Viewport.Height)
	}
	if ev.Performance.LoadTime > 0 {
		row["loadTime"] = strconv.FormatFloat(ev.Performance.LoadTime, 'f', -1, 64)
	}
	if ev.Performance.RenderTime > 0 {
		row["renderTime"] = strconv.FormatFloat(ev.Performance.RenderTime, 'f', -1, 64)
	}
	if ev.Performance.InteractionTime > 0 {
		row["interactionTime"] = strconv.FormatFloat(ev.Performance.InteractionTime, 'f', -1, 64)
	}
	return row
}

// titleize turns a camelCase field name into a spaced title header, e.g.
// "componentName" -> "Component Name".
func titleize(field string) string {
	var b strings.Builder
	for i, r := range field {
		if i == 0 {
			b.WriteRune(r - 'a' + 'A')
			continue
		}
		if r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func writeCSV(file *os.File, events []*models.TrackingEvent) error {
	w := csv.NewWriter(file)

	headers := make([]string, len(fieldOrder))
	for i, field := range fieldOrder {
		headers[i] = titleize(field)
	}
	if err := w.Write(headers); err != nil {
		return err
	}

	record := make([]string, len(fieldOrder))
	for _, ev := range events {
		row := flatten(ev)
		for i, field := range fieldOrder {
			record[i] = row[field]
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

type jsonEnvelope struct {
	ExportDate   time.Time           `json:"exportDate"`
	TotalRecords int                 `json:"totalRecords"`
	Data         []map[string]string `json:"data"`
}

func writeJSON(file *os.File, events []*models.TrackingEvent) error {
	data := make([]map[string]string, 0, len(events))
	for _, ev := range events {
		data = append(data, flatten(ev))
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonEnvelope{
		ExportDate:   time.Now().UTC(),
		TotalRecords: len(events),
		Data:         data,
	})
}
