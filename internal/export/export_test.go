package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/uitrack/uitrack/internal/apperr"
	"github.com/uitrack/uitrack/internal/models"
	"github.com/uitrack/uitrack/internal/storage"
)

func newTestExporter(t *testing.T, maxRecords int, events ...*models.TrackingEvent) *Exporter {
	t.Helper()
	store := storage.NewInMemoryEventStore()
	for _, ev := range events {
		if err := store.Insert(context.Background(), ev); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}
	return NewExporter(store, t.TempDir(), maxRecords, zap.NewNop())
}

func sampleEvent(i int, ts time.Time) *models.TrackingEvent {
	return &models.TrackingEvent{
		ID:            "id-" + string(rune('a'+i)),
		ComponentName: "Button",
		Variant:       "primary",
		Action:        models.ActionClick,
		Timestamp:     ts,
		SessionID:     "session-1",
		CreatedAt:     ts,
	}
}

func TestExportEmptyIsNotFound(t *testing.T) {
	exporter := newTestExporter(t, 100)

	_, err := exporter.Export(context.Background(), storage.Filter{}, FormatCSV)
	if err == nil {
		t.Fatal("expected error for empty export")
	}
	var nf *apperr.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %T: %v", err, err)
	}
}

func TestExportCSV(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	exporter := newTestExporter(t, 100,
		sampleEvent(0, base),
		sampleEvent(1, base.Add(time.Minute)),
	)

	artifact, err := exporter.Export(context.Background(), storage.Filter{}, FormatCSV)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	defer artifact.Release()

	if artifact.RecordCount != 2 {
		t.Errorf("recordCount = %d, want 2", artifact.RecordCount)
	}

	file, err := os.Open(artifact.Path)
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("invalid csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][1] != "Component Name" {
		t.Errorf("header not titleized: %q", rows[0][1])
	}
	// Newest first.
	if rows[1][0] != "id-b" {
		t.Errorf("expected newest row first, got %q", rows[1][0])
	}
}

func TestExportJSONEnvelope(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	exporter := newTestExporter(t, 100, sampleEvent(0, base))

	artifact, err := exporter.Export(context.Background(), storage.Filter{}, FormatJSON)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	defer artifact.Release()

	raw, err := os.ReadFile(artifact.Path)
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}

	var envelope struct {
		ExportDate   time.Time           `json:"exportDate"`
		TotalRecords int                 `json:"totalRecords"`
		Data         []map[string]string `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if envelope.TotalRecords != 1 || len(envelope.Data) != 1 {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
	if envelope.Data[0]["componentName"] != "Button" {
		t.Errorf("unexpected row: %+v", envelope.Data[0])
	}
	if envelope.ExportDate.IsZero() {
		t.Error("exportDate missing")
	}
}

func TestExportRecordCap(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	events := make([]*models.TrackingEvent, 0, 10)
	for i := 0; i < 10; i++ {
		events = append(events, sampleEvent(i, base.Add(time.Duration(i)*time.Second)))
	}
	exporter := newTestExporter(t, 4, events...)

	artifact, err := exporter.Export(context.Background(), storage.Filter{}, FormatJSON)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	defer artifact.Release()

	if artifact.RecordCount != 4 {
		t.Errorf("recordCount = %d, want cap 4", artifact.RecordCount)
	}
}

func TestReleaseRemovesFileIdempotently(t *testing.T) {
	exporter := newTestExporter(t, 100, sampleEvent(0, time.Now()))

	artifact, err := exporter.Export(context.Background(), storage.Filter{}, FormatCSV)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	if err := artifact.Release(); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if _, err := os.Stat(artifact.Path); !os.IsNotExist(err) {
		t.Errorf("artifact still present after release")
	}
	if err := artifact.Release(); err != nil {
		t.Errorf("second release should be a no-op, got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"":     FormatCSV,
		"csv":  FormatCSV,
		"JSON": FormatJSON,
	} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v; want %v", in, got, err, want)
		}
	}

	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected unknown format to be rejected")
	}
}

func TestTitleize(t *testing.T) {
	cases := map[string]string{
		"id":            "Id",
		"componentName": "Component Name",
		"viewportWidth": "Viewport Width",
	}
	for in, want := range cases {
		if got := titleize(in); got != want {
			t.Errorf("titleize(%q) = %q, want %q", in, got, want)
		}
	}
}
