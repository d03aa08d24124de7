package fpm

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"rabiescast/internal/bundle"
	"rabiescast/internal/logging"
	"rabiescast/internal/risk"
)

const testModel = `{
  "thresholds": {
    "temperature":   {"bins": ["-inf", 25, 30, "inf"], "labels": ["Cool", "Warm", "Hot"]},
    "humidity":      {"bins": ["-inf", 70, 85, "inf"], "labels": ["Low_Humidity", "High_Humidity", "Very_High_Humidity"]},
    "precipitation": {"bins": [-1, 100, 300, "inf"],   "labels": ["Dry_Month", "Moderate_Rain", "Wet_Month"]},
    "wind":          {"bins": [0, 15, 25, "inf"],      "labels": ["Calm", "Breezy", "Windy"]},
    "sunshine":      {"bins": [0, 100, 200, "inf"],    "labels": ["Low_Sun", "Moderate_Sun", "High_Sun"]}
  },
  "summary": {
    "rabies_related_rules": 42,
    "high_risk_rules": 12,
    "low_risk_rules": 9,
    "strongest_lift": 4.09,
    "data_source": "1,627 monthly records (2022-2025)"
  }
}`

func newEngine(t *testing.T) *Engine {
	t.Helper()
	m, err := Decode(strings.NewReader(testModel))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return NewEngine(m, logging.Discard())
}

func TestBins_Label(t *testing.T) {
	b := Bins{Edges: []Edge{0, 15, 25}, Labels: []string{"Calm", "Breezy"}}

	tests := []struct {
		value float64
		want  string
	}{
		{0, UnknownLabel},
		{0.1, "Calm"},
		{15, "Calm"},
		{15.01, "Breezy"},
		{25, "Breezy"},
		{25.5, UnknownLabel},
		{-3, UnknownLabel},
		{math.NaN(), UnknownLabel},
	}
	for _, tt := range tests {
		if got := b.Label(tt.value); got != tt.want {
			t.Errorf("Label(%v) = %s, want %s", tt.value, got, tt.want)
		}
	}
}

func TestEngine_Categorize(t *testing.T) {
	e := newEngine(t)

	got, err := e.Categorize(DefaultWeather())
	if err != nil {
		t.Fatalf("Categorize() error = %v", err)
	}
	want := Categorized{
		Temperature:   "Warm",
		Humidity:      "High_Humidity",
		Precipitation: "Moderate_Rain",
		Wind:          "Calm",
		Sunshine:      "Moderate_Sun",
		PatternString: "Humidity: High_Humidity, Wind: Calm, Rain: Moderate_Rain",
	}
	if got != want {
		t.Errorf("Categorize() = %+v, want %+v", got, want)
	}
}

func TestEngine_Assess(t *testing.T) {
	e := newEngine(t)

	tests := []struct {
		name           string
		weather        Weather
		wantLevel      risk.Level
		wantConfidence float64
		wantLift       float64
		wantFactor     string
	}{
		{
			name:           "high risk pattern",
			weather:        Weather{TempMeanC: 28, RHPct: 90, PrecipMM: 400, WindMaxKmh: 10, SunshineHours: 90},
			wantLevel:      risk.High,
			wantConfidence: 0.22,
			wantLift:       3.44,
			wantFactor:     "occurred in 22% of high-case months",
		},
		{
			name:           "low risk pattern",
			weather:        Weather{TempMeanC: 31, RHPct: 60, PrecipMM: 50, WindMaxKmh: 20, SunshineHours: 250},
			wantLevel:      risk.Low,
			wantConfidence: 0.194,
			wantLift:       4.09,
			wantFactor:     "occurred in 19.4% of low-case months",
		},
		{
			name:           "no pattern",
			weather:        DefaultWeather(),
			wantLevel:      risk.Medium,
			wantConfidence: 0.15,
			wantFactor:     "Humidity level (High_Humidity) is in the moderate range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Assess(tt.weather)
			if !got.Available {
				t.Fatalf("Assess() unavailable: %s", got.Message)
			}
			if got.RiskLevel != tt.wantLevel {
				t.Errorf("RiskLevel = %s, want %s", got.RiskLevel, tt.wantLevel)
			}
			if got.Confidence != tt.wantConfidence {
				t.Errorf("Confidence = %v, want %v", got.Confidence, tt.wantConfidence)
			}
			if tt.wantLevel == risk.Medium {
				if got.MatchedPattern != nil {
					t.Errorf("MatchedPattern = %+v, want nil", got.MatchedPattern)
				}
			} else if got.MatchedPattern == nil || got.MatchedPattern.Lift != tt.wantLift {
				t.Errorf("MatchedPattern = %+v, want lift %v", got.MatchedPattern, tt.wantLift)
			}

			found := false
			for _, f := range got.RiskFactors {
				if strings.Contains(f, tt.wantFactor) {
					found = true
				}
			}
			if !found {
				t.Errorf("RiskFactors %v missing %q", got.RiskFactors, tt.wantFactor)
			}
			if len(got.Recommendations) == 0 || got.WhyThisRisk == "" || got.RuleExplanations == nil {
				t.Error("Assess() left explanatory fields empty")
			}
			if got.ModelInfo.TotalRules != 42 || got.ModelInfo.DataSource == "" {
				t.Errorf("ModelInfo = %+v", got.ModelInfo)
			}
		})
	}
}

func TestEngine_Deterministic(t *testing.T) {
	e := newEngine(t)
	w := Weather{TempMeanC: 26.4, RHPct: 86, PrecipMM: 310, WindMaxKmh: 14.9, SunshineHours: 120}

	first, second := e.Assess(w), e.Assess(w)
	if !reflect.DeepEqual(first, second) {
		t.Error("Assess() returned different results for the same input")
	}
}

func TestEngine_Unavailable(t *testing.T) {
	e := NewEngine(nil, logging.Discard())

	got := e.Assess(DefaultWeather())
	if got.Available || got.Message != "FPM model not loaded" {
		t.Errorf("Assess() with nil model = %+v", got)
	}
	if _, err := e.Categorize(DefaultWeather()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Categorize() error = %v, want ErrUnavailable", err)
	}
	if tl := e.Timeline(&bundle.Bundle{}, map[time.Time]Weather{}); tl == nil || len(tl) != 0 {
		t.Errorf("Timeline() = %v, want empty", tl)
	}
}

func TestDecode_StructuredRules(t *testing.T) {
	doc := strings.Replace(testModel, `"summary"`, `"rules": [
    {"kind": "high", "pattern": "Humid + Calm", "confidence": 0.3, "lift": 2.5,
     "conditions": [
       {"field": "humidity", "allowed_labels": ["High_Humidity", "Very_High_Humidity"]},
       {"field": "wind", "allowed_labels": ["Calm"]}
     ]}
  ],
  "summary"`, 1)
	m, err := Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(m.Rules) != 1 {
		t.Fatalf("Rules = %d, want 1 (no defaults when rules are present)", len(m.Rules))
	}

	got := NewEngine(m, logging.Discard()).Assess(DefaultWeather())
	if got.RiskLevel != risk.High || got.MatchedPattern.Conditions != "Humid + Calm" {
		t.Errorf("Assess() = %s %+v", got.RiskLevel, got.MatchedPattern)
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		old  string
		new  string
	}{
		{"edge count", `[0, 15, 25, "inf"],      "labels": ["Calm", "Breezy", "Windy"]`, `[0, 15, 25], "labels": ["Calm", "Breezy", "Windy"]`},
		{"not increasing", `[0, 15, 25, "inf"]`, `[0, 25, 15, "inf"]`},
		{"bad edge", `[0, 15, 25, "inf"]`, `[0, 15, 25, "lots"]`},
		{"unknown kind", `"summary"`, `"rules": [{"kind": "odd", "conditions": [{"field": "wind", "allowed_labels": ["Calm"]}]}], "summary"`},
		{"unknown field", `"summary"`, `"rules": [{"kind": "low", "conditions": [{"field": "pressure", "allowed_labels": ["x"]}]}], "summary"`},
		{"no conditions", `"summary"`, `"rules": [{"kind": "low", "conditions": []}], "summary"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := strings.Replace(testModel, tt.old, tt.new, 1)
			if doc == testModel {
				t.Fatalf("replacement %q not found", tt.old)
			}
			if _, err := Decode(strings.NewReader(doc)); err == nil {
				t.Error("Decode() expected error, got nil")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fpm.json")
	if err := os.WriteFile(path, []byte(testModel), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !math.IsInf(float64(m.Thresholds.Humidity.Edges[3]), 1) {
		t.Errorf("humidity upper edge = %v, want +Inf", m.Thresholds.Humidity.Edges[3])
	}
	if len(m.Rules) != len(DefaultRules) {
		t.Errorf("Rules = %d, want defaults", len(m.Rules))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Load() of missing file expected error")
	}
}

func TestEngine_Timeline(t *testing.T) {
	e := newEngine(t)
	month := func(m time.Month) time.Time { return time.Date(2024, m, 1, 0, 0, 0, 0, time.UTC) }

	b := &bundle.Bundle{
		Municipality: "TAYTAY",
		Barangay:     "Dolores",
		Validation: bundle.Series{
			Dates:       []time.Time{month(time.January), month(time.February), month(time.March), month(time.April)},
			Actuals:     []float64{10, 5, 10, 3},
			Predictions: []float64{8, 7, 10.5, 3},
		},
	}
	weather := map[time.Time]Weather{
		month(time.January):  {TempMeanC: 27.26, RHPct: 90, PrecipMM: 400.4, WindMaxKmh: 10, SunshineHours: 88.6},
		month(time.February): {TempMeanC: 31, RHPct: 60, PrecipMM: 50, WindMaxKmh: 20, SunshineHours: 250},
		month(time.March):    DefaultWeather(),
	}

	got := e.Timeline(b, weather)
	if len(got) != 3 {
		t.Fatalf("Timeline() returned %d entries, want 3 (April has no weather)", len(got))
	}

	jan := got[0]
	if jan.Date != "2024-01" || jan.DateDisplay != "January 2024" {
		t.Errorf("dates = %s / %s", jan.Date, jan.DateDisplay)
	}
	if jan.FPMRisk != risk.High || jan.Error != -2 || jan.ErrorPct != -20 {
		t.Errorf("January = %+v", jan)
	}
	if jan.Weather.Temperature != 27.3 || jan.Weather.Precipitation != 400 || jan.Weather.Sunshine != 89 {
		t.Errorf("January weather = %+v", jan.Weather)
	}
	if !strings.HasPrefix(jan.Interpretation, "FPM correctly identified HIGH RISK weather (Lift=3.44x). Model UNDERPREDICTED by 2 cases (20.0%)") {
		t.Errorf("January interpretation = %q", jan.Interpretation)
	}

	feb := got[1]
	if feb.FPMRisk != risk.Low || feb.FPMConfidence != 0.194 || feb.FPMLift != 4.09 {
		t.Errorf("February = %+v", feb)
	}
	if !strings.Contains(feb.Interpretation, "OVERPREDICTED by 2 cases (40.0%)") {
		t.Errorf("February interpretation = %q", feb.Interpretation)
	}

	mar := got[2]
	if mar.FPMRisk != risk.Medium || mar.FPMConfidence != 0.15 || mar.FPMLift != 1 {
		t.Errorf("March = %+v", mar)
	}
	if !strings.HasPrefix(mar.Interpretation, "MEDIUM RISK weather (no strong FPM pattern). Model prediction was accurate") {
		t.Errorf("March interpretation = %q", mar.Interpretation)
	}
}
