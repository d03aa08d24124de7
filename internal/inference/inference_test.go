package inference

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"rabiescast/internal/features"
)

func month(year int, m time.Month) time.Time {
	return time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
}

const additiveJSON = `{
	"origin": "2024-01",
	"offset": 10,
	"slope": 1,
	"changepoints": [{"at": "2024-03", "delta": 2}],
	"regressors": {"tmean_c": 0.5},
	"events": [{"name": "new_year", "months": ["2024-01"], "effect": 3}]
}`

func TestAdditive_Predict(t *testing.T) {
	m, err := NewAdditive(json.RawMessage(additiveJSON))
	if err != nil {
		t.Fatalf("NewAdditive() error = %v", err)
	}

	frame := features.NewFrame(features.MonthRange(month(2024, time.January), 5))
	frame.Fill("tmean_c", 2)

	out, err := m.Predict(frame)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	tests := []struct {
		column string
		want   []float64
	}{
		{ColumnTrend, []float64{10, 11, 12, 15, 18}},
		{RegressorColumnPrefix + "tmean_c", []float64{1, 1, 1, 1, 1}},
		{EventColumnPrefix + "new_year", []float64{3, 0, 0, 0, 0}},
		{ColumnEventsAdditive, []float64{3, 0, 0, 0, 0}},
		{ColumnForecast, []float64{14, 12, 13, 16, 19}},
	}

	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			got, ok := out.Column(tt.column)
			if !ok {
				t.Fatalf("column %s missing", tt.column)
			}
			for i := range tt.want {
				if math.Abs(got[i]-tt.want[i]) > 1e-9 {
					t.Errorf("%s[%d] = %v, want %v", tt.column, i, got[i], tt.want[i])
				}
			}
		})
	}

	if out.Has(ColumnSeasonYearly) {
		t.Error("season_yearly emitted without Fourier terms")
	}
}

func TestAdditive_MissingRegressor(t *testing.T) {
	m, err := NewAdditive(json.RawMessage(additiveJSON))
	if err != nil {
		t.Fatalf("NewAdditive() error = %v", err)
	}

	frame := features.NewFrame(features.MonthRange(month(2024, time.January), 2))
	if _, err := m.Predict(frame); err == nil {
		t.Error("Predict() without regressor column should fail")
	}
}

func TestAdditive_Seasonality(t *testing.T) {
	m, err := NewAdditive(json.RawMessage(`{"origin": "2020-01", "yearly_fourier": [[2, 0]]}`))
	if err != nil {
		t.Fatalf("NewAdditive() error = %v", err)
	}

	// Same calendar month in different years carries the same seasonal value.
	frame := features.NewFrame([]time.Time{month(2021, time.April), month(2023, time.April), month(2023, time.January)})
	out, err := m.Predict(frame)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	season, _ := out.Column(ColumnSeasonYearly)
	if season[0] != season[1] {
		t.Errorf("season_yearly differs across years: %v vs %v", season[0], season[1])
	}
	if season[2] != 0 {
		t.Errorf("season_yearly in January = %v, want 0", season[2])
	}
}

func TestNewAdditive_InvalidOrigin(t *testing.T) {
	if _, err := NewAdditive(json.RawMessage(`{"origin": "not-a-date"}`)); err == nil {
		t.Error("NewAdditive() with invalid origin should fail")
	}
}

var featureNames = []string{
	"Year", "Month", "lag_1", "lag_2", "rolling_mean_3", "rolling_std_3",
	"lag_12", "month_sin", "month_cos", "rate_of_change_1", "np_prediction",
}

func stumpParams(split string) TreeEnsembleParams {
	neg, pos := -1.0, 2.0
	return TreeEnsembleParams{
		BaseScore:    0.5,
		FeatureNames: featureNames,
		Trees: []*TreeNode{{
			NodeID:         0,
			Split:          split,
			SplitCondition: 5,
			Yes:            1,
			No:             2,
			Missing:        2,
			Children: []*TreeNode{
				{NodeID: 1, Leaf: &neg},
				{NodeID: 2, Leaf: &pos},
			},
		}},
	}
}

func TestTreeEnsemble_Predict(t *testing.T) {
	tests := []struct {
		name       string
		split      string
		prediction float64
		want       float64
	}{
		{"below split", "np_prediction", 3, -0.5},
		{"equal goes right", "np_prediction", 5, 2.5},
		{"above split", "np_prediction", 9, 2.5},
		{"positional name", "f10", 3, -0.5},
		{"missing value", "np_prediction", math.NaN(), 2.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te, err := NewTreeEnsembleFromParams(stumpParams(tt.split))
			if err != nil {
				t.Fatalf("NewTreeEnsembleFromParams() error = %v", err)
			}
			x := make([]float64, len(featureNames))
			x[10] = tt.prediction

			got, err := te.Predict(x)
			if err != nil {
				t.Fatalf("Predict() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Predict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTreeEnsemble_WrongLength(t *testing.T) {
	te, err := NewTreeEnsembleFromParams(stumpParams("np_prediction"))
	if err != nil {
		t.Fatalf("NewTreeEnsembleFromParams() error = %v", err)
	}
	if _, err := te.Predict([]float64{1, 2, 3}); err == nil {
		t.Error("Predict() with short vector should fail")
	}
}

func TestTreeEnsemble_Importances(t *testing.T) {
	te, err := NewTreeEnsembleFromParams(stumpParams("np_prediction"))
	if err != nil {
		t.Fatalf("NewTreeEnsembleFromParams() error = %v", err)
	}

	imp := te.FeatureImportances()
	if len(imp) != len(featureNames) {
		t.Fatalf("FeatureImportances() length = %d, want %d", len(imp), len(featureNames))
	}
	if imp[10] != 1 {
		t.Errorf("np_prediction importance = %v, want 1", imp[10])
	}

	p := stumpParams("np_prediction")
	p.FeatureImportances = []float64{1, 2}
	if _, err := NewTreeEnsembleFromParams(p); err == nil {
		t.Error("misaligned feature_importances should fail")
	}

	if got := te.Describe()["n_estimators"]; got != "1" {
		t.Errorf("Describe()[n_estimators] = %s, want 1", got)
	}
}

func TestNewTreeEnsemble_UnknownSplit(t *testing.T) {
	if _, err := NewTreeEnsembleFromParams(stumpParams("humidity")); err == nil {
		t.Error("unknown split feature should fail")
	}
}
