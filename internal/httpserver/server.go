package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uitrack/uitrack/internal/apperr"
	"github.com/uitrack/uitrack/internal/config"
	"github.com/uitrack/uitrack/internal/database"
	"github.com/uitrack/uitrack/internal/export"
	"github.com/uitrack/uitrack/internal/geo"
	"github.com/uitrack/uitrack/internal/metrics"
	"github.com/uitrack/uitrack/internal/middleware"
	"github.com/uitrack/uitrack/internal/models"
	"github.com/uitrack/uitrack/internal/stats"
	"github.com/uitrack/uitrack/internal/storage"
	"github.com/uitrack/uitrack/internal/validate"
)

const (
	maxBodyBytes  = 64 << 10
	maxQueryLimit = 1000
	defaultLimit  = 100
)

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	DB         *database.PostgresDB
	Redis      *database.RedisDB
	ClickHouse *database.ClickHouseDB
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Server wraps HTTP handlers for the tracking service.
type Server struct {
	store    storage.EventStore
	engine   *stats.Engine
	exporter *export.Exporter
	geo      geo.Provider
	logger   *zap.Logger
	config   *config.Config
	metrics  *metrics.Metrics
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	var store storage.EventStore
	switch {
	case deps.ClickHouse != nil:
		store = storage.NewClickHouseEventStore(deps.ClickHouse.Conn)
	case deps.DB != nil:
		store = storage.NewPostgresEventStore(deps.DB.Pool)
	default:
		store = storage.NewInMemoryEventStore()
	}

	var geoProvider geo.Provider
	if deps.Config.Geo.Enabled {
		provider, err := geo.NewMaxMindProvider(deps.Config.Geo.DatabasePath)
		if err != nil {
			deps.Logger.Warn("failed to initialize geo provider, enrichment disabled", zap.Error(err))
		} else {
			geoProvider = provider
		}
	}

	s := &Server{
		store:    store,
		engine:   stats.NewEngine(store, deps.Logger),
		exporter: export.NewExporter(store, deps.Config.Export.Dir, deps.Config.Export.MaxRecords, deps.Logger),
		geo:      geoProvider,
		logger:   deps.Logger,
		config:   deps.Config,
		metrics:  deps.Metrics,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	// Tracking ingestion
	mux.HandleFunc("/components/track", s.handleTrack)

	// Aggregated statistics
	mux.HandleFunc("/components/stats", s.handleStats)
	mux.HandleFunc("/components/stats/realtime", s.handleRealTimeStats)

	// Snapshot export
	mux.HandleFunc("/components/export", s.handleExport)

	// Per-component details
	mux.HandleFunc("/components/", s.handleComponentDetails)

	return mux
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ---- Tracking Ingestion ----

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()

	var ev models.TrackingEvent
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&ev); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	if err := validate.TrackingEvent(&ev); err != nil {
		var verrs validate.ValidationErrors
		if errors.As(err, &verrs) {
			if s.metrics != nil {
				fields := make([]string, 0, len(verrs))
				for _, fe := range verrs {
					fields = append(fields, fe.Field)
				}
				s.metrics.RecordValidationFailure(fields, time.Since(start))
			}
			s.validationResponse(w, verrs)
			return
		}
		s.errorResponse(w, "invalid input", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	ev.ID = uuid.New().String()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = now
	}
	ev.CreatedAt = now

	// Identity comes from the authenticated caller only; a userId in
	// the request body is never trusted.
	ev.UserID = middleware.Identity(r.Context())

	s.enrichLocation(&ev, r)

	if err := s.store.Insert(r.Context(), &ev); err != nil {
		s.logger.Error("failed to save tracking event", zap.Error(err))
		if s.metrics != nil {
			s.metrics.RecordStoreError("insert")
		}
		s.errorResponse(w, "failed to save tracking event", http.StatusInternalServerError)
		return
	}

	if s.metrics != nil {
		s.metrics.RecordIngest(string(ev.Action), time.Since(start))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"id":            ev.ID,
		"componentName": ev.ComponentName,
		"variant":       ev.Variant,
		"action":        ev.Action,
		"timestamp":     ev.Timestamp,
	})
}

// enrichLocation fills an empty event location from the caller's IP when
// a geo provider is configured. Lookup failures never block ingestion.
func (s *Server) enrichLocation(ev *models.TrackingEvent, r *http.Request) {
	if s.geo == nil || ev.Location != (models.Location{}) {
		return
	}

	loc, err := s.geo.Lookup(middleware.ClientIP(r))
	if err != nil {
		s.logger.Debug("geo lookup failed", zap.Error(err))
		if s.metrics != nil {
			s.metrics.RecordGeoLookup("error")
		}
		return
	}
	ev.Location = *loc
	if s.metrics != nil {
		s.metrics.RecordGeoLookup("ok")
	}
}

// ---- Aggregated Statistics ----

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()

	f, limit, page, verrs := parseStatsQuery(r)
	if len(verrs) > 0 {
		s.validationResponse(w, verrs)
		return
	}

	overview, err := s.engine.Overview(r.Context(), f, limit, page)
	if err != nil {
		s.logger.Error("failed to compute stats", zap.Error(err))
		if s.metrics != nil {
			s.metrics.RecordStoreError("query")
		}
		s.errorResponse(w, "failed to compute stats", http.StatusInternalServerError)
		return
	}

	if s.metrics != nil {
		s.metrics.RecordStats("overview", time.Since(start))
	}
	s.jsonResponse(w, overview)
}

func (s *Server) handleRealTimeStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()

	rt, err := s.engine.RealTime(r.Context())
	if err != nil {
		s.logger.Error("failed to compute realtime stats", zap.Error(err))
		s.errorResponse(w, "failed to compute stats", http.StatusInternalServerError)
		return
	}

	if s.metrics != nil {
		s.metrics.RecordStats("realtime", time.Since(start))
	}
	s.jsonResponse(w, map[string]interface{}{
		"realTime":  rt,
		"timestamp": time.Now().UTC(),
	})
}

// ---- Snapshot Export ----

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	f, _, _, verrs := parseStatsQuery(r)
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		verrs = append(verrs, validate.FieldError{
			Field:   "format",
			Message: "format must be one of csv, json",
			Value:   r.URL.Query().Get("format"),
		})
	}
	if len(verrs) > 0 {
		s.validationResponse(w, verrs)
		return
	}

	artifact, err := s.exporter.Export(r.Context(), f, format)
	if err != nil {
		var nf *apperr.NotFoundError
		if errors.As(err, &nf) {
			if s.metrics != nil {
				s.metrics.RecordExport(string(format), "empty", 0)
			}
			s.errorResponse(w, nf.Message, http.StatusNotFound)
			return
		}
		s.logger.Error("export failed", zap.Error(err))
		if s.metrics != nil {
			s.metrics.RecordExport(string(format), "error", 0)
		}
		s.errorResponse(w, "export failed", http.StatusInternalServerError)
		return
	}

	if err := s.streamArtifact(w, artifact); err != nil {
		// Streaming failed mid-flight; drop the file right away.
		s.logger.Warn("export stream interrupted", zap.Error(err))
		s.releaseArtifact(artifact)
		return
	}

	if s.metrics != nil {
		s.metrics.RecordExport(string(format), "ok", artifact.RecordCount)
	}

	// The file has been fully handed off; keep it around briefly so
	// retries hitting a proxy cache do not race the cleanup.
	grace := s.config.Export.GracePeriod
	time.AfterFunc(grace, func() {
		s.releaseArtifact(artifact)
	})
}

func (s *Server) streamArtifact(w http.ResponseWriter, artifact *export.Artifact) error {
	file, err := os.Open(artifact.Path)
	if err != nil {
		s.errorResponse(w, "export failed", http.StatusInternalServerError)
		return err
	}
	defer file.Close()

	contentType := "text/csv"
	if artifact.Format == export.FormatJSON {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepathBase(artifact.Path)+`"`)
	w.Header().Set("Content-Length", strconv.FormatInt(artifact.SizeBytes, 10))

	_, err = io.Copy(w, file)
	return err
}

func (s *Server) releaseArtifact(artifact *export.Artifact) {
	status := "ok"
	if err := artifact.Release(); err != nil {
		status = "error"
	}
	if s.metrics != nil {
		s.metrics.RecordArtifactRelease(status)
	}
}

func filepathBase(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx != -1 {
		return path[idx+1:]
	}
	return path
}

// ---- Per-Component Details ----

func (s *Server) handleComponentDetails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/components/")
	name, ok := strings.CutSuffix(rest, "/details")
	if !ok || name == "" || strings.Contains(name, "/") {
		http.NotFound(w, r)
		return
	}

	start := time.Now()

	f, _, _, verrs := parseStatsQuery(r)
	if len(verrs) > 0 {
		s.validationResponse(w, verrs)
		return
	}

	details, err := s.engine.ComponentDetails(r.Context(), name, f)
	if err != nil {
		s.logger.Error("failed to compute component details", zap.Error(err))
		s.errorResponse(w, "failed to compute stats", http.StatusInternalServerError)
		return
	}
	if details == nil {
		s.errorResponse(w, "component not found", http.StatusNotFound)
		return
	}

	if s.metrics != nil {
		s.metrics.RecordStats("component_details", time.Since(start))
	}
	s.jsonResponse(w, details)
}

// ---- Query Parsing ----

// parseStatsQuery validates the shared read-side query parameters,
// collecting every violation rather than stopping at the first.
func parseStatsQuery(r *http.Request) (storage.Filter, int, int, validate.ValidationErrors) {
	var f storage.Filter
	var verrs validate.ValidationErrors
	q := r.URL.Query()

	if v := q.Get("startDate"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			verrs = append(verrs, validate.FieldError{
				Field:   "startDate",
				Message: "startDate must be an ISO 8601 date",
				Value:   v,
			})
		} else {
			f.Start = &t
		}
	}
	if v := q.Get("endDate"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			verrs = append(verrs, validate.FieldError{
				Field:   "endDate",
				Message: "endDate must be an ISO 8601 date",
				Value:   v,
			})
		} else {
			f.End = &t
		}
	}

	f.ComponentName = strings.TrimSpace(q.Get("componentName"))
	f.Variant = strings.TrimSpace(q.Get("variant"))

	if v := q.Get("action"); v != "" {
		action := models.Action(v)
		if !models.ValidAction(action) {
			verrs = append(verrs, validate.FieldError{
				Field:   "action",
				Message: "action is not a valid action type",
				Value:   v,
			})
		} else {
			f.Action = action
		}
	}

	limit := defaultLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxQueryLimit {
			verrs = append(verrs, validate.FieldError{
				Field:   "limit",
				Message: "limit must be an integer between 1 and 1000",
				Value:   v,
			})
		} else {
			limit = n
		}
	}

	page := 1
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			verrs = append(verrs, validate.FieldError{
				Field:   "page",
				Message: "page must be a positive integer",
				Value:   v,
			})
		} else {
			page = n
		}
	}

	return f, limit, page, verrs
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// ---- Helper Methods ----

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (s *Server) validationResponse(w http.ResponseWriter, verrs validate.ValidationErrors) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":            "validation failed",
		"validationErrors": verrs,
	})
}
