// Package explain decomposes a bundle's historical fit into named components
// (trend, yearly seasonality, holiday effects and per-regressor
// contributions) for interpretability output.
package explain

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"rabiescast/internal/bundle"
	"rabiescast/internal/features"
	"rabiescast/internal/forecast"
	"rabiescast/internal/inference"
	"rabiescast/internal/metrics"
)

const (
	changepointSigma    = 1.5
	maxChangepoints     = 10
	holidayThreshold    = 0.1
	eventThreshold      = 0.01
	maxHolidayEffects   = 20
	defaultHolidayLabel = "Holiday"
)

// Components holds per-date decomposition values rounded to two decimals.
type Components struct {
	Dates                 []string             `json:"dates"`
	Trend                 []float64            `json:"trend"`
	YearlySeasonality     []float64            `json:"yearly_seasonality"`
	Holidays              []float64            `json:"holidays"`
	WeatherRegressors     map[string][]float64 `json:"weather_regressors"`
	VaccinationRegressors map[string][]float64 `json:"vaccination_regressors"`
	SeasonalRegressors    map[string][]float64 `json:"seasonal_regressors"`
}

// FeatureImportance is one residual-model feature's share.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
	Percentage float64 `json:"percentage"`
}

// Changepoint is a month where the trend moved sharply.
type Changepoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// HolidayEffect is a month with a significant event contribution.
type HolidayEffect struct {
	Date    string  `json:"date"`
	Holiday string  `json:"holiday"`
	Effect  float64 `json:"effect"`
	Impact  string  `json:"impact"`
}

// ModelInfo summarises model hyperparameters and regressor counts.
type ModelInfo struct {
	ChangepointsRange          string `json:"neuralprophet_changepoint_prior_scale"`
	NEstimators                string `json:"xgboost_n_estimators"`
	MaxDepth                   string `json:"xgboost_max_depth"`
	HolidaysConfigured         string `json:"holidays_configured"`
	WeatherRegressorsCount     int    `json:"weather_regressors_count"`
	VaccinationRegressorsCount int    `json:"vaccination_regressors_count"`
	SeasonalRegressorsCount    int    `json:"seasonal_regressors_count"`
}

// Explanation is the extractor's result. On failure Success is false, Error
// is set and every collection is empty.
type Explanation struct {
	Success           bool                `json:"success"`
	Error             string              `json:"error,omitempty"`
	Components        Components          `json:"components"`
	FeatureImportance []FeatureImportance `json:"feature_importance"`
	Changepoints      []Changepoint       `json:"changepoints"`
	HolidayEffects    []HolidayEffect     `json:"holiday_effects"`
	HasHolidays       bool                `json:"has_holidays"`
	RegressorMetadata map[string][]string `json:"regressor_metadata"`
	ModelInfo         *ModelInfo          `json:"model_info,omitempty"`
}

// Extractor builds explanations. It holds no per-call state.
type Extractor struct {
	logger logrus.FieldLogger
}

// NewExtractor creates an extractor.
func NewExtractor(logger logrus.FieldLogger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract decomposes the bundle's train ∪ validation months. It never
// returns an error; failures are reported in the Explanation.
func (e *Extractor) Extract(b *bundle.Bundle) Explanation {
	start := time.Now()
	out, err := e.extract(b)
	metrics.RecordInference("decompose", time.Since(start), err)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"municipality": b.Municipality,
			"barangay":     b.Barangay,
			"stage":        "decompose",
		}).WithError(err).Error("Component extraction failed")
		return failed(err)
	}
	return out
}

func (e *Extractor) extract(b *bundle.Bundle) (Explanation, error) {
	dates, _ := b.HistoricalDates()
	if len(dates) == 0 {
		return Explanation{}, errors.New("no historical data available in model")
	}

	frame := features.NewFrame(dates)
	if err := forecast.AttachRegressors(frame, b, true); err != nil {
		return Explanation{}, fmt.Errorf("attach regressors: %w", err)
	}
	decomposition, err := b.Baseline.Predict(frame)
	if err != nil {
		return Explanation{}, fmt.Errorf("baseline decomposition: %w", err)
	}
	if decomposition.Len() != len(dates) {
		return Explanation{}, fmt.Errorf("decomposition returned %d rows for %d dates", decomposition.Len(), len(dates))
	}

	schema := b.Schema
	comps := Components{
		Dates:                 make([]string, len(dates)),
		Trend:                 column(decomposition, schema.Trend),
		YearlySeasonality:     column(decomposition, schema.Seasonality),
		Holidays:              column(decomposition, schema.Holiday),
		WeatherRegressors:     contributions(decomposition, schema, b.RegressorColumns(bundle.Weather)),
		VaccinationRegressors: contributions(decomposition, schema, b.VaccinationColumns()),
		SeasonalRegressors:    contributions(decomposition, schema, b.RegressorColumns(bundle.Seasonal)),
	}
	for i, d := range dates {
		comps.Dates[i] = features.FormatMonth(d)
	}

	importance, err := featureImportance(b.Residual)
	if err != nil {
		return Explanation{}, err
	}

	return Explanation{
		Success:           true,
		Components:        comps,
		FeatureImportance: importance,
		Changepoints:      changepoints(comps.Dates, comps.Trend),
		HolidayEffects:    holidayEffects(comps, decomposition, schema.Events),
		HasHolidays:       schema.HasHolidays(),
		RegressorMetadata: regressorMetadata(b),
		ModelInfo:         modelInfo(b),
	}, nil
}

// column returns the rounded named column, or zeros when the model emits no
// such column.
func column(f *features.Frame, name string) []float64 {
	out := make([]float64, f.Len())
	values, ok := f.Column(name)
	if name == "" || !ok {
		return out
	}
	for i, v := range values {
		out[i] = bundle.Round(v, 2)
	}
	return out
}

func contributions(f *features.Frame, schema bundle.Schema, regressors []string) map[string][]float64 {
	out := make(map[string][]float64, len(regressors))
	for _, r := range regressors {
		out[r] = column(f, schema.Contributions[r])
	}
	return out
}

func featureImportance(m inference.ResidualModel) ([]FeatureImportance, error) {
	names := forecast.FeatureNames()
	scores := m.FeatureImportances()
	if len(scores) != len(names) {
		return nil, fmt.Errorf("%w: %d importances for %d features", forecast.ErrFeatureContract, len(scores), len(names))
	}

	out := make([]FeatureImportance, len(names))
	for i, name := range names {
		out[i] = FeatureImportance{
			Feature:    name,
			Importance: bundle.Round(scores[i], 4),
			Percentage: bundle.Round(scores[i]*100, 2),
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out, nil
}

// changepoints flags interior months whose step from the previous month
// exceeds 1.5 population standard deviations of the whole trend. This is a
// heuristic over the fitted trend, not the baseline's own changepoints.
func changepoints(dates []string, trend []float64) []Changepoint {
	out := []Changepoint{}
	if len(trend) < 3 {
		return out
	}
	threshold := stat.PopStdDev(trend, nil) * changepointSigma
	for i := 1; i < len(trend)-1 && len(out) < maxChangepoints; i++ {
		if math.Abs(trend[i]-trend[i-1]) > threshold {
			out = append(out, Changepoint{Date: dates[i], Value: trend[i]})
		}
	}
	return out
}

func holidayEffects(comps Components, f *features.Frame, events []string) []HolidayEffect {
	out := []HolidayEffect{}
	for i, effect := range comps.Holidays {
		if len(out) == maxHolidayEffects {
			break
		}
		if math.Abs(effect) <= holidayThreshold {
			continue
		}

		var names []string
		for _, col := range events {
			values, ok := f.Column(col)
			if ok && math.Abs(values[i]) > eventThreshold {
				name := strings.ReplaceAll(col, inference.EventColumnPrefix, "")
				names = append(names, strings.ReplaceAll(name, "_", " "))
			}
		}
		label := defaultHolidayLabel
		if len(names) > 0 {
			label = strings.Join(names, " + ")
		}

		impact := "Negative"
		if effect > 0 {
			impact = "Positive"
		}
		out = append(out, HolidayEffect{
			Date:    comps.Dates[i],
			Holiday: label,
			Effect:  effect,
			Impact:  impact,
		})
	}
	return out
}

func regressorMetadata(b *bundle.Bundle) map[string][]string {
	out := make(map[string][]string, len(b.Regressors))
	for c, cols := range b.Regressors {
		out[string(c)] = append([]string(nil), cols...)
	}
	return out
}

func modelInfo(b *bundle.Bundle) *ModelInfo {
	info := &ModelInfo{
		ChangepointsRange:          "N/A",
		NEstimators:                "N/A",
		MaxDepth:                   "N/A",
		HolidaysConfigured:         "No",
		WeatherRegressorsCount:     len(b.Regressors[bundle.Weather]),
		VaccinationRegressorsCount: len(b.Regressors[bundle.Vaccination]),
		SeasonalRegressorsCount:    len(b.Regressors[bundle.Seasonal]),
	}
	if b.Schema.HasHolidays() {
		info.HolidaysConfigured = "Yes"
	}
	if d, ok := b.Baseline.(inference.Describer); ok {
		if v, ok := d.Describe()["changepoints_range"]; ok {
			info.ChangepointsRange = v
		}
	}
	if d, ok := b.Residual.(inference.Describer); ok {
		desc := d.Describe()
		if v, ok := desc["n_estimators"]; ok {
			info.NEstimators = v
		}
		if v, ok := desc["max_depth"]; ok {
			info.MaxDepth = v
		}
	}
	return info
}

func failed(err error) Explanation {
	return Explanation{
		Success: false,
		Error:   err.Error(),
		Components: Components{
			Dates:                 []string{},
			Trend:                 []float64{},
			YearlySeasonality:     []float64{},
			Holidays:              []float64{},
			WeatherRegressors:     map[string][]float64{},
			VaccinationRegressors: map[string][]float64{},
			SeasonalRegressors:    map[string][]float64{},
		},
		FeatureImportance: []FeatureImportance{},
		Changepoints:      []Changepoint{},
		HolidayEffects:    []HolidayEffect{},
		RegressorMetadata: map[string][]string{},
	}
}
