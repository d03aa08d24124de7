package bundle

import (
	"strings"
	"testing"
	"time"

	"rabiescast/internal/features"
)

func month(year int, m time.Month) time.Time {
	return time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
}

const artifactJSON = `{
	"municipality": "CITY OF ANTIPOLO",
	"barangay": "San Jose",
	"training_end": "2024-06-01",
	"validation_end": "2024-09-01",
	"train": {
		"dates": ["2024-04", "2024-05", "2024-06"],
		"actuals": [4, 6, 5],
		"predictions": [4.5, 5.5, 5]
	},
	"validation": {
		"dates": ["2024-07", "2024-08", "2024-09"],
		"actuals": [7, 3, 2],
		"predictions": [6, 4, 2.5]
	},
	"regressors": {"weather": ["tmean_c"]},
	"metrics": {"hybrid_mae": 1.23456, "val_mae": 9, "val_rmse": 2.34567, "mape": 15.556, "r2": 0.71234, "hybrid_mase": 0.8886},
	"baseline": {
		"origin": "2024-01",
		"offset": 5,
		"regressors": {"tmean_c": 0.1, "vaccination_mar2024_lag1": 2},
		"events": [{"name": "Christmas", "months": ["2024-12"], "effect": 1.5}]
	},
	"residual": {
		"feature_names": ["Year", "Month", "lag_1", "lag_2", "rolling_mean_3", "rolling_std_3", "lag_12", "month_sin", "month_cos", "rate_of_change_1", "np_prediction"],
		"trees": [{"nodeid": 0, "leaf": 0.25}]
	}
}`

func TestDecode(t *testing.T) {
	b, err := Decode(strings.NewReader(artifactJSON))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if got := b.Key(); got != "CITY OF ANTIPOLO_San Jose" {
		t.Errorf("Key() = %s, want CITY OF ANTIPOLO_San Jose", got)
	}
	if got := features.FormatMonth(b.ForecastStart()); got != "2024-10" {
		t.Errorf("ForecastStart() = %s, want 2024-10", got)
	}
	if b.Train.Len() != 3 || b.Validation.Len() != 3 {
		t.Errorf("series lengths = %d/%d, want 3/3", b.Train.Len(), b.Validation.Len())
	}

	if b.Schema.Forecast != "yhat1" {
		t.Errorf("Schema.Forecast = %s, want yhat1", b.Schema.Forecast)
	}
	if b.Schema.Holiday != "events_additive" {
		t.Errorf("Schema.Holiday = %s, want events_additive", b.Schema.Holiday)
	}
	if got := b.Schema.Contributions["tmean_c"]; got != "future_regressor_tmean_c" {
		t.Errorf("Schema.Contributions[tmean_c] = %s, want future_regressor_tmean_c", got)
	}
	if got := b.Schema.Contributions["vaccination_mar2024_lag1"]; got != "future_regressor_vaccination_mar2024_lag1" {
		t.Errorf("vaccination contribution = %q", got)
	}
	if _, ok := b.Schema.Contributions["vaccination_jan2023_lag1"]; ok {
		t.Error("contribution resolved for a column the baseline does not emit")
	}

	m := b.Metrics.Rounded()
	want := Metrics{MAE: 1.23, RMSE: 2.35, MAPE: 15.56, R2: 0.712, MASE: 0.889}
	if m != want {
		t.Errorf("Metrics.Rounded() = %+v, want %+v", m, want)
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{
			name: "validation before training",
			mutate: func(s string) string {
				return strings.Replace(s, `"validation_end": "2024-09-01"`, `"validation_end": "2024-01-01"`, 1)
			},
			wantErr: "precedes training end",
		},
		{
			name: "length mismatch",
			mutate: func(s string) string {
				return strings.Replace(s, `"actuals": [4, 6, 5]`, `"actuals": [4, 6]`, 1)
			},
			wantErr: "lengths differ",
		},
		{
			name: "unsorted dates",
			mutate: func(s string) string {
				return strings.Replace(s, `["2024-07", "2024-08", "2024-09"]`, `["2024-07", "2024-07", "2024-09"]`, 1)
			},
			wantErr: "strictly ascending",
		},
		{
			name: "unknown regressor category",
			mutate: func(s string) string {
				return strings.Replace(s, `{"weather": ["tmean_c"]}`, `{"traffic": ["cars"]}`, 1)
			},
			wantErr: "unknown regressor category",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.mutate(artifactJSON)))
			if err == nil {
				t.Fatal("Decode() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Decode() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestForecastStart(t *testing.T) {
	tests := []struct {
		name       string
		training   time.Time
		validation time.Time
		want       string
	}{
		{"training only", month(2024, time.December), time.Time{}, "2025-01"},
		{"validation later", month(2024, time.June), month(2024, time.December), "2025-01"},
		{"equal ends", month(2024, time.March), month(2024, time.March), "2024-04"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Bundle{TrainingEnd: tt.training, ValidationEnd: tt.validation}
			if got := features.FormatMonth(b.ForecastStart()); got != tt.want {
				t.Errorf("ForecastStart() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestResolveMetrics(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]float64
		want float64
	}{
		{"hybrid wins", map[string]float64{"hybrid_mae": 1, "val_mae": 2, "mae": 3}, 1},
		{"val next", map[string]float64{"val_mae": 2, "mae": 3}, 2},
		{"bare last", map[string]float64{"mae": 3}, 3},
		{"missing", map[string]float64{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveMetrics(tt.raw).MAE; got != tt.want {
				t.Errorf("ResolveMetrics().MAE = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveSchema(t *testing.T) {
	s, err := ResolveSchema([]string{"yhat", "yearly", "holidays_total", "season_rh_pct", "event_New_Year"}, []string{"rh_pct", "precip_mm"})
	if err != nil {
		t.Fatalf("ResolveSchema() error = %v", err)
	}

	if s.Forecast != "yhat" || s.Trend != "yhat" {
		t.Errorf("Forecast/Trend = %s/%s, want yhat/yhat", s.Forecast, s.Trend)
	}
	if s.Seasonality != "yearly" {
		t.Errorf("Seasonality = %s, want yearly", s.Seasonality)
	}
	if s.Holiday != "holidays_total" {
		t.Errorf("Holiday = %s, want holidays_total", s.Holiday)
	}
	if s.Contributions["rh_pct"] != "season_rh_pct" {
		t.Errorf("Contributions[rh_pct] = %s, want season_rh_pct", s.Contributions["rh_pct"])
	}
	if _, ok := s.Contributions["precip_mm"]; ok {
		t.Error("Contributions[precip_mm] should be unresolved")
	}
	if len(s.Events) != 1 || s.Events[0] != "event_New_Year" {
		t.Errorf("Events = %v", s.Events)
	}

	if _, err := ResolveSchema([]string{"trend"}, nil); err == nil {
		t.Error("ResolveSchema() without forecast column should fail")
	}
}

func TestHistoricalDates(t *testing.T) {
	b := &Bundle{
		Train: Series{
			Dates:   []time.Time{month(2024, time.January), month(2024, time.February)},
			Actuals: []float64{1, 2},
		},
		Validation: Series{
			Dates:   []time.Time{month(2024, time.February), month(2024, time.March)},
			Actuals: []float64{20, 3},
		},
	}

	dates, actuals := b.HistoricalDates()
	if len(dates) != 3 {
		t.Fatalf("HistoricalDates() returned %d dates, want 3", len(dates))
	}
	want := []float64{1, 2, 3}
	for i := range want {
		if actuals[i] != want[i] {
			t.Errorf("actuals[%d] = %v, want %v", i, actuals[i], want[i])
		}
	}
}
