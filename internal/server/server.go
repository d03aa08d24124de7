package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"rabiescast/internal/bundle"
	"rabiescast/internal/explain"
	"rabiescast/internal/features"
	"rabiescast/internal/forecast"
	"rabiescast/internal/fpm"
	"rabiescast/internal/models"
	"rabiescast/internal/registry"
	"rabiescast/internal/risk"
)

const defaultAlertLimit = 100

// AlertStore reads persisted threshold alerts.
type AlertStore interface {
	GetAlerts(ctx context.Context, municipality string, limit int) ([]models.Alert, error)
}

// WeatherStore reads collected monthly weather.
type WeatherStore interface {
	MonthlyWeatherAverages(ctx context.Context, municipality string) ([]models.MonthlyWeather, error)
	GetMonthlyWeather(ctx context.Context, location string, since time.Time) ([]models.MonthlyWeather, error)
}

// RiskStore reads stored relative risk classifications.
type RiskStore interface {
	GetRiskSnapshots(ctx context.Context, municipality, barangay string, limit int) ([]models.RiskSnapshot, error)
}

// Services are the core components the handlers delegate to.
type Services struct {
	Registry   *registry.Registry
	Predictor  *forecast.Predictor
	Extractor  *explain.Extractor
	Classifier *risk.Classifier
	Scanner    *risk.Scanner
	Policy     *risk.ThresholdPolicy
	Engine     *fpm.Engine
}

// Options tune request handling. The stores may be nil.
type Options struct {
	DefaultHorizon int
	MaxHorizon     int
	Alerts         AlertStore
	Weather        WeatherStore
	Risk           RiskStore
}

// Server represents the HTTP server
type Server struct {
	svc    Services
	opts   Options
	logger logrus.FieldLogger
	mux    *http.ServeMux
}

// NewServer creates a new HTTP server
func NewServer(svc Services, opts Options, logger logrus.FieldLogger) *Server {
	s := &Server{
		svc:    svc,
		opts:   opts,
		logger: logger,
		mux:    http.NewServeMux(),
	}

	// Register routes
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/municipalities", s.handleMunicipalities)
	s.mux.HandleFunc("/api/barangay/{municipality}/{barangay}", s.handleBarangay)
	s.mux.HandleFunc("/api/forecast/{municipality}/{barangay}", s.handleForecast)
	s.mux.HandleFunc("/api/interpretability/{municipality}/{barangay}", s.handleInterpretability)
	s.mux.HandleFunc("/api/weather-insights", s.handleWeatherInsights)
	s.mux.HandleFunc("/api/alerts", s.handleAlerts)
	s.mux.HandleFunc("/api/risk-history/{municipality}/{barangay}", s.handleRiskHistory)
	s.mux.HandleFunc("/api/weather/{location}", s.handleWeather)
	s.mux.HandleFunc("/api/thresholds", s.handleThresholds)
	s.mux.Handle("/metrics", promhttp.Handler())

	return s
}

// ServeHTTP dispatches to the registered routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	return http.ListenAndServe(addr, s.mux)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// lookup resolves the path's bundle, writing a 404 when it is absent.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*bundle.Bundle, bool) {
	municipality, barangay := r.PathValue("municipality"), r.PathValue("barangay")
	b, err := s.svc.Registry.LookupFold(municipality, barangay)
	if errors.Is(err, bundle.ErrNotFound) {
		http.Error(w, "Barangay not found: "+bundle.Key(municipality, barangay), http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return b, true
}

// handleHealth returns the server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":        "healthy",
		"time":          time.Now().UTC().String(),
		"models_loaded": s.svc.Registry.Len(),
		"fpm_available": s.svc.Engine.Available(),
	})
}

type barangaySummary struct {
	Name          string     `json:"name"`
	MAE           float64    `json:"mae"`
	PredictedNext *float64   `json:"predicted_next"`
	RiskLevel     risk.Level `json:"risk_level"`
	RiskColor     string     `json:"risk_color"`
}

type municipalitySummary struct {
	Municipality   string            `json:"municipality"`
	Barangays      []barangaySummary `json:"barangays"`
	TotalBarangays int               `json:"total_barangays"`
	AverageMAE     float64           `json:"avg_mae"`
	RiskSummary    risk.Counts       `json:"risk_summary"`
}

// handleMunicipalities lists municipalities with per-barangay risk
func (s *Server) handleMunicipalities(w http.ResponseWriter, r *http.Request) {
	summaries := s.svc.Registry.Municipalities()
	out := make([]municipalitySummary, 0, len(summaries))

	for _, m := range summaries {
		ms := municipalitySummary{
			Municipality:   m.Municipality,
			TotalBarangays: m.Count,
			AverageMAE:     m.AverageMAE,
		}
		for _, name := range m.Barangays {
			b, err := s.svc.Registry.Lookup(m.Municipality, name)
			if err != nil {
				continue
			}
			a := s.svc.Classifier.Assess(b)
			ms.RiskSummary.Add(a.Level)

			bs := barangaySummary{
				Name:      b.Barangay,
				MAE:       bundle.Round(b.Metrics.MAE, 2),
				RiskLevel: a.Level,
				RiskColor: a.Color,
			}
			if next, err := s.svc.Predictor.NextMonth(b); err == nil {
				v := bundle.Round(next.Predicted, 1)
				bs.PredictedNext = &v
			}
			ms.Barangays = append(ms.Barangays, bs)
		}
		sort.SliceStable(ms.Barangays, func(i, j int) bool {
			return predicted(ms.Barangays[i]) > predicted(ms.Barangays[j])
		})
		out = append(out, ms)
	}

	writeJSON(w, map[string]interface{}{
		"success":        true,
		"municipalities": out,
	})
}

func predicted(b barangaySummary) float64 {
	if b.PredictedNext == nil {
		return -1
	}
	return *b.PredictedNext
}

// handleBarangay returns a barangay's series, metrics, next month and risk
func (s *Server) handleBarangay(w http.ResponseWriter, r *http.Request) {
	b, ok := s.lookup(w, r)
	if !ok {
		return
	}

	train, validation := b.Train.Records(), b.Validation.Records()
	detail := map[string]interface{}{
		"municipality":          b.Municipality,
		"barangay":              b.Barangay,
		"metrics":               b.Metrics.Snapshot(),
		"training_data":         train,
		"validation_data":       validation,
		"next_month_prediction": nil,
		"has_chart_data":        len(train) > 0 || len(validation) > 0,
		"risk":                  s.svc.Classifier.Assess(b),
	}
	if next, err := s.svc.Predictor.NextMonth(b); err == nil {
		detail["next_month_prediction"] = bundle.Round(next.Predicted, 1)
		detail["next_month"] = features.FormatMonth(next.Date)
	}

	writeJSON(w, map[string]interface{}{
		"success":  true,
		"barangay": detail,
	})
}

// handleForecast returns a multi-month forecast, ?months=N
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	b, ok := s.lookup(w, r)
	if !ok {
		return
	}

	months := s.opts.DefaultHorizon
	if raw := r.URL.Query().Get("months"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > s.opts.MaxHorizon {
			http.Error(w, fmt.Sprintf("Months must be between 1 and %d", s.opts.MaxHorizon), http.StatusBadRequest)
			return
		}
		months = n
	}

	points, err := s.svc.Predictor.Forecast(b, months)
	if err != nil {
		http.Error(w, "Failed to generate predictions: "+err.Error(), http.StatusInternalServerError)
		return
	}

	lastObserved := b.TrainingEnd
	if b.HasValidation() {
		lastObserved = b.ValidationEnd
	}
	records := forecast.ToRecords(points)
	writeJSON(w, map[string]interface{}{
		"success": true,
		"forecast": map[string]interface{}{
			"municipality":   b.Municipality,
			"barangay":       b.Barangay,
			"validation_end": features.FormatMonth(lastObserved),
			"forecast_start": records[0].Date,
			"forecast_end":   records[len(records)-1].Date,
			"predictions":    records,
		},
	})
}

// handleInterpretability returns the component explanation and, when
// weather history is stored, the pattern timeline over validation months
func (s *Server) handleInterpretability(w http.ResponseWriter, r *http.Request) {
	b, ok := s.lookup(w, r)
	if !ok {
		return
	}

	exp := s.svc.Extractor.Extract(b)
	if !exp.Success {
		http.Error(w, "Failed to extract model components: "+exp.Error, http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"success": true,
		"interpretability": map[string]interface{}{
			"municipality": b.Municipality,
			"barangay":     b.Barangay,
			"explanation":  exp,
			"fpm_timeline": s.timeline(r.Context(), b),
		},
	})
}

func (s *Server) timeline(ctx context.Context, b *bundle.Bundle) []fpm.TimelineEntry {
	if s.opts.Weather == nil || !s.svc.Engine.Available() {
		return []fpm.TimelineEntry{}
	}
	rows, err := s.opts.Weather.MonthlyWeatherAverages(ctx, b.Municipality)
	if err != nil {
		s.logger.WithError(err).WithField("municipality", b.Municipality).Warn("Weather history unavailable")
		return []fpm.TimelineEntry{}
	}
	return s.svc.Engine.Timeline(b, WeatherByMonth(rows))
}

// WeatherByMonth keys stored monthly weather by month start.
func WeatherByMonth(rows []models.MonthlyWeather) map[time.Time]fpm.Weather {
	out := make(map[time.Time]fpm.Weather, len(rows))
	for _, row := range rows {
		out[features.MonthStart(row.Month)] = fpm.Weather{
			TempMeanC:     row.TempMeanC,
			RHPct:         row.RHPct,
			PrecipMM:      row.PrecipMM,
			WindMaxKmh:    row.WindMaxKmh,
			SunshineHours: row.SunshineHours,
		}
	}
	return out
}

// handleWeatherInsights assesses posted weather; omitted fields take defaults
func (s *Server) handleWeatherInsights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req := fpm.DefaultWeather()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, s.svc.Engine.Assess(req))
}

// handleAlerts returns stored alerts, or scans live when no store is configured
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	municipality := r.URL.Query().Get("municipality")
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	var alerts []models.Alert
	source := "live"
	if s.opts.Alerts != nil {
		stored, err := s.opts.Alerts.GetAlerts(r.Context(), municipality, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		alerts, source = stored, "stored"
	} else {
		bundles := risk.FilterMunicipality(s.svc.Registry.All(), municipality)
		scanned, _ := s.svc.Scanner.Scan(r.Context(), bundles)
		if len(scanned) > limit {
			scanned = scanned[:limit]
		}
		alerts = scanned
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}

	writeJSON(w, map[string]interface{}{
		"success": true,
		"source":  source,
		"count":   len(alerts),
		"alerts":  alerts,
	})
}

// queryLimit parses ?limit, writing a 400 when it is not a positive integer.
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultAlertLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		http.Error(w, "Invalid limit", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

// handleRiskHistory returns stored relative classifications for a barangay
func (s *Server) handleRiskHistory(w http.ResponseWriter, r *http.Request) {
	b, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if s.opts.Risk == nil {
		http.Error(w, "Risk history requires a database", http.StatusServiceUnavailable)
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	snapshots, err := s.opts.Risk.GetRiskSnapshots(r.Context(), b.Municipality, b.Barangay, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if snapshots == nil {
		snapshots = []models.RiskSnapshot{}
	}

	writeJSON(w, map[string]interface{}{
		"success":      true,
		"municipality": b.Municipality,
		"barangay":     b.Barangay,
		"count":        len(snapshots),
		"history":      snapshots,
	})
}

// handleWeather returns a location's collected monthly weather, ?since=YYYY-MM
func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	if s.opts.Weather == nil {
		http.Error(w, "Weather history requires a database", http.StatusServiceUnavailable)
		return
	}
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := features.ParseMonth(raw)
		if err != nil {
			http.Error(w, "Invalid since: "+raw, http.StatusBadRequest)
			return
		}
		since = t
	}

	location := r.PathValue("location")
	rows, err := s.opts.Weather.GetMonthlyWeather(r.Context(), location, since)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []models.MonthlyWeather{}
	}

	writeJSON(w, map[string]interface{}{
		"success":  true,
		"location": location,
		"months":   rows,
	})
}

// handleThresholds returns the legacy alert thresholds per municipality
func (s *Server) handleThresholds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"success":    true,
		"thresholds": s.svc.Policy.All(),
	})
}
