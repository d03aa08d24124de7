package risk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rabiescast/internal/bundle"
	"rabiescast/internal/features"
	"rabiescast/internal/forecast"
	"rabiescast/internal/logging"
	"rabiescast/internal/models"
)

type stubForecaster struct {
	mu     sync.Mutex
	values map[string][]float64
	err    map[string]error
	calls  []int
}

func (s *stubForecaster) Forecast(b *bundle.Bundle, horizon int) ([]forecast.Point, error) {
	s.mu.Lock()
	s.calls = append(s.calls, horizon)
	s.mu.Unlock()

	if err := s.err[b.Key()]; err != nil {
		return nil, err
	}
	values := s.values[b.Key()]
	dates := forecast.DateRange(b, horizon)
	points := make([]forecast.Point, horizon)
	for i := range points {
		points[i] = forecast.Point{Date: dates[i], Predicted: values[i%len(values)]}
	}
	return points, nil
}

func month(year int, m time.Month) time.Time {
	return time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
}

func newBundle(municipality, barangay string, train, validation []float64, validationEnd time.Time) *bundle.Bundle {
	trainDates := features.MonthRange(month(2022, time.January), len(train))
	b := &bundle.Bundle{
		Municipality: municipality,
		Barangay:     barangay,
		TrainingEnd:  trainDates[len(trainDates)-1],
		Train:        bundle.Series{Dates: trainDates, Actuals: train, Predictions: train},
		Metrics:      bundle.Metrics{MAE: 1.234},
	}
	if len(validation) > 0 {
		dates := features.MonthRange(features.AddMonths(validationEnd, 1-len(validation)), len(validation))
		b.Validation = bundle.Series{Dates: dates, Actuals: validation, Predictions: validation}
		b.ValidationEnd = validationEnd
	}
	return b
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name        string
		forecastAvg float64
		recentAvg   float64
		recentMax   float64
		want        Level
	}{
		{"exactly 80% of max is not high", 16.0, 12.5, 20, Medium},
		{"just above 80% of max", 16.1, 12.5, 20, High},
		{"exactly 120% of avg is low", 15.0, 12.5, 40, Low},
		{"above 120% of avg", 15.1, 12.5, 40, Medium},
		{"below both", 5, 12.5, 20, Low},
		{"all zero history", 0.1, 0, 0, High},
		{"zero forecast zero history", 0, 0, 0, Low},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.forecastAvg, tt.recentAvg, tt.recentMax); got != tt.want {
				t.Errorf("Decide(%v, %v, %v) = %s, want %s", tt.forecastAvg, tt.recentAvg, tt.recentMax, got, tt.want)
			}
		})
	}
}

func TestClassifier_Assess(t *testing.T) {
	validation := []float64{1, 1, 10, 10, 10, 10, 10, 10, 10, 20}
	b := newBundle("TAYTAY", "Dolores", []float64{5, 5, 5}, validation, month(2024, time.October))
	stub := &stubForecaster{values: map[string][]float64{b.Key(): {16.0}}}

	got := NewClassifier(stub, 8, logging.Discard()).Assess(b)

	if got.Level != Medium {
		t.Errorf("Assess().Level = %s, want %s", got.Level, Medium)
	}
	if got.RecentMonths != 8 {
		t.Errorf("RecentMonths = %d, want 8", got.RecentMonths)
	}
	if got.RecentAvg != 11.25 || got.RecentMax != 20 {
		t.Errorf("recent avg/max = %v/%v, want 11.25/20", got.RecentAvg, got.RecentMax)
	}
	if got.ForecastAvg != 16.0 {
		t.Errorf("ForecastAvg = %v, want 16", got.ForecastAvg)
	}
	if got.Color != "#f57c00" {
		t.Errorf("Color = %s", got.Color)
	}
	if len(stub.calls) != 1 || stub.calls[0] != 8 {
		t.Errorf("forecaster calls = %v, want [8]", stub.calls)
	}
}

func TestClassifier_ShortHistory(t *testing.T) {
	b := newBundle("TAYTAY", "Dolores", []float64{5}, []float64{4, 6}, month(2024, time.October))
	stub := &stubForecaster{values: map[string][]float64{b.Key(): {4.84}}}

	got := NewClassifier(stub, 0, logging.Discard()).Assess(b)
	if got.RecentMonths != 2 || got.RecentMax != 6 {
		t.Errorf("recent window = %d months max %v", got.RecentMonths, got.RecentMax)
	}
	// 4.84 is reported as 4.8, which is not above 0.8*6.
	if got.Level != Low {
		t.Errorf("Assess().Level = %s, want %s", got.Level, Low)
	}
	if stub.calls[0] != DefaultHorizon {
		t.Errorf("horizon = %d, want %d", stub.calls[0], DefaultHorizon)
	}
}

func TestClassifier_Unknown(t *testing.T) {
	noValidation := newBundle("TAYTAY", "Dolores", []float64{5, 5}, nil, time.Time{})
	failing := newBundle("TAYTAY", "Muzon", []float64{5}, []float64{3}, month(2024, time.October))
	stub := &stubForecaster{
		values: map[string][]float64{noValidation.Key(): {100}},
		err:    map[string]error{failing.Key(): errors.New("forecast unavailable")},
	}
	c := NewClassifier(stub, 8, logging.Discard())

	tests := []struct {
		name string
		b    *bundle.Bundle
	}{
		{"no validation actuals", noValidation},
		{"forecast failure", failing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Assess(tt.b)
			if got.Level != Unknown {
				t.Errorf("Assess().Level = %s, want UNKNOWN", got.Level)
			}
			if got.Reason == "" {
				t.Error("UNKNOWN assessment has no reason")
			}
			if got.Color != "#666666" {
				t.Errorf("Color = %s", got.Color)
			}
		})
	}
	if len(stub.calls) != 1 {
		t.Errorf("forecaster called %d times, want 1 (skipped without history)", len(stub.calls))
	}
}

func TestThresholdPolicy_Check(t *testing.T) {
	p := DefaultThresholdPolicy()

	tests := []struct {
		municipality  string
		predicted     float64
		wantLevel     Level
		wantThreshold float64
		wantMessage   string
	}{
		{"CITY OF ANTIPOLO", 51, High, 50, "CRITICAL: 51 cases (>50 threshold)"},
		{"CITY OF ANTIPOLO", 50, Medium, 30, "WARNING: 50 cases (>30 threshold)"},
		{"CAINTA", 12.4, Low, 12, "ADVISORY: 12 cases (>12 threshold)"},
		{"ANGONO", 10, Normal, 0, "Normal: 10 cases"},
		{"BINANGONAN", 31, High, 30, "CRITICAL: 31 cases (>30 threshold)"},
		{"taytay", 21, Medium, 20, "WARNING: 21 cases (>20 threshold)"},
	}

	for _, tt := range tests {
		level, threshold, message := p.Check(tt.municipality, tt.predicted)
		if level != tt.wantLevel || threshold != tt.wantThreshold || message != tt.wantMessage {
			t.Errorf("Check(%s, %v) = %s, %v, %q; want %s, %v, %q",
				tt.municipality, tt.predicted, level, threshold, message, tt.wantLevel, tt.wantThreshold, tt.wantMessage)
		}
	}
}

func TestThresholdPolicy_SeasonalSurge(t *testing.T) {
	p := DefaultThresholdPolicy()

	tests := []struct {
		name      string
		month     time.Month
		predicted float64
		want      bool
		message   string
	}{
		{"dry season above 1.5x", time.March, 15.1, true, "DRY-SEASON SURGE"},
		{"dry season at 1.5x", time.March, 15, false, "No surge"},
		{"wet season at 1.9x", time.August, 19, false, "No surge"},
		{"wet season above 2x", time.August, 20.5, true, "UNUSUAL SURGE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, msg := p.SeasonalSurge(tt.month, tt.predicted, 10)
			if got != tt.want || msg != tt.message {
				t.Errorf("SeasonalSurge() = %v, %q; want %v, %q", got, msg, tt.want, tt.message)
			}
		})
	}
}

func TestNewThresholdPolicy_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		thresholds map[string]Thresholds
		fallback   string
		dry        []time.Month
	}{
		{"not descending", map[string]Thresholds{"TAYTAY": {High: 10, Medium: 20, Low: 5}}, "TAYTAY", nil},
		{"zero low", map[string]Thresholds{"TAYTAY": {High: 30, Medium: 20, Low: 0}}, "TAYTAY", nil},
		{"missing fallback", map[string]Thresholds{"TAYTAY": {High: 30, Medium: 20, Low: 10}}, "CAINTA", nil},
		{"bad month", map[string]Thresholds{"TAYTAY": {High: 30, Medium: 20, Low: 10}}, "TAYTAY", []time.Month{13}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewThresholdPolicy(tt.thresholds, tt.fallback, tt.dry); err == nil {
				t.Error("NewThresholdPolicy() expected error, got nil")
			}
		})
	}
}

func TestScanner_Scan(t *testing.T) {
	end := month(2024, time.December)
	high := newBundle("TAYTAY", "Dolores", []float64{10, 10}, []float64{10}, end)
	medium := newBundle("TAYTAY", "San Juan", []float64{10, 10}, []float64{10}, end)
	mediumLarger := newBundle("CAINTA", "San Isidro", []float64{30, 30}, []float64{30}, end)
	surge := newBundle("ANGONO", "Kalayaan", []float64{2, 2}, []float64{2}, end)
	quiet := newBundle("ANGONO", "Mahabang Parang", []float64{8, 8}, []float64{8}, end)
	failing := newBundle("ANGONO", "San Isidro", []float64{8, 8}, []float64{8}, end)

	stub := &stubForecaster{
		values: map[string][]float64{
			high.Key():         {31.26},
			medium.Key():       {21},
			mediumLarger.Key(): {26},
			surge.Key():        {4},
			quiet.Key():        {9},
		},
		err: map[string]error{failing.Key(): errors.New("baseline failed")},
	}
	s := NewScanner(DefaultThresholdPolicy(), stub, 3, logging.Discard())
	fixed := time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	alerts, summary := s.Scan(context.Background(), []*bundle.Bundle{quiet, surge, medium, failing, high, mediumLarger})

	if summary.Scanned != 6 || summary.Failed != 1 || summary.Alerts != 4 {
		t.Errorf("summary = %+v, want 6 scanned, 1 failed, 4 alerts", summary)
	}
	if summary.SlowestKey == "" || summary.Slowest < 0 {
		t.Errorf("summary slowest = %q in %v, want a scanned bundle", summary.SlowestKey, summary.Slowest)
	}
	wantOrder := []string{high.Key(), mediumLarger.Key(), medium.Key(), surge.Key()}
	if len(alerts) != len(wantOrder) {
		t.Fatalf("Scan() returned %d alerts, want %d", len(alerts), len(wantOrder))
	}
	for i, key := range wantOrder {
		if got := bundle.Key(alerts[i].Municipality, alerts[i].Barangay); got != key {
			t.Errorf("alerts[%d] = %s, want %s", i, got, key)
		}
	}

	first := alerts[0]
	if first.Predicted != 31.3 || first.ForecastMonth != "2025-01" || first.ModelMAE != 1.23 {
		t.Errorf("alerts[0] = %+v", first)
	}
	if !first.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", first.CreatedAt, fixed)
	}

	last := alerts[3]
	if last.RiskLevel != string(Normal) || !last.SeasonalSurge || last.SeasonalAlert != "DRY-SEASON SURGE" {
		t.Errorf("surge alert = %+v", last)
	}
}

func TestScanner_Cancelled(t *testing.T) {
	b := newBundle("TAYTAY", "Dolores", []float64{10}, []float64{10}, month(2024, time.December))
	stub := &stubForecaster{values: map[string][]float64{b.Key(): {50}}}
	s := NewScanner(DefaultThresholdPolicy(), stub, 2, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	alerts, summary := s.Scan(ctx, []*bundle.Bundle{b})

	if len(alerts) != 0 || summary.Failed != 1 {
		t.Errorf("Scan() after cancel = %d alerts, summary %+v", len(alerts), summary)
	}
	if len(stub.calls) != 0 {
		t.Errorf("forecaster called %d times after cancel", len(stub.calls))
	}
}

func TestSortAlerts(t *testing.T) {
	alerts := []models.Alert{
		{Barangay: "a", RiskLevel: "NORMAL", Predicted: 99},
		{Barangay: "b", RiskLevel: "LOW", Predicted: 11},
		{Barangay: "c", RiskLevel: "HIGH", Predicted: 31},
		{Barangay: "d", RiskLevel: "LOW", Predicted: 14},
		{Barangay: "e", RiskLevel: "HIGH", Predicted: 60},
	}
	SortAlerts(alerts)

	want := "ecdba"
	got := ""
	for _, a := range alerts {
		got += a.Barangay
	}
	if got != want {
		t.Errorf("SortAlerts() order = %s, want %s", got, want)
	}
}

func TestFilterMunicipality(t *testing.T) {
	bundles := []*bundle.Bundle{
		{Municipality: "TAYTAY", Barangay: "Dolores"},
		{Municipality: "CAINTA", Barangay: "San Isidro"},
	}
	if got := FilterMunicipality(bundles, ""); len(got) != 2 {
		t.Errorf("FilterMunicipality(\"\") = %d bundles, want 2", len(got))
	}
	if got := FilterMunicipality(bundles, "CAINTA"); len(got) != 1 || got[0].Barangay != "San Isidro" {
		t.Errorf("FilterMunicipality(CAINTA) = %v", got)
	}
}

func TestCounts(t *testing.T) {
	var c Counts
	for _, l := range []Level{High, Low, Low, Unknown, Medium} {
		c.Add(l)
	}
	if c != (Counts{High: 1, Medium: 1, Low: 2}) {
		t.Errorf("Counts = %+v", c)
	}
}

func TestAssessment_Snapshot(t *testing.T) {
	b := &bundle.Bundle{Municipality: "TAYTAY", Barangay: "Dolores"}
	at := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	snap := Assessment{Level: High, ForecastAvg: 16.04, RecentAvg: 11.25, RecentMax: 20}.Snapshot(b, at)

	if snap.Level != "HIGH" || snap.ForecastAvg != 16 || snap.RecentAvg != 11.3 || !snap.AssessedAt.Equal(at) {
		t.Errorf("Snapshot() = %+v", snap)
	}
}
