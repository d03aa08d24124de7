// Package bundle holds the per-barangay hybrid model bundle: the two
// numerical models, their historical series, regressor metadata and the
// accuracy snapshot taken when the bundle was saved.
package bundle

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"rabiescast/internal/features"
	"rabiescast/internal/inference"
	"rabiescast/internal/models"
)

// ErrNotFound is returned when no bundle exists for a key.
var ErrNotFound = errors.New("bundle not found")

// Category groups regressor columns by origin.
type Category string

const (
	Weather     Category = "weather"
	Vaccination Category = "vaccination"
	Seasonal    Category = "seasonal"
)

// Series is a parallel (date, actual, in-sample prediction) sequence.
type Series struct {
	Dates       []time.Time
	Actuals     []float64
	Predictions []float64
}

// Len returns the number of observations.
func (s Series) Len() int {
	return len(s.Dates)
}

// Records converts the series to boundary records with YYYY-MM dates.
func (s Series) Records() []models.SeriesPoint {
	out := make([]models.SeriesPoint, len(s.Dates))
	for i, d := range s.Dates {
		out[i] = models.SeriesPoint{
			Date:      features.FormatMonth(d),
			Actual:    s.Actuals[i],
			Predicted: s.Predictions[i],
		}
	}
	return out
}

func (s Series) validate() error {
	if len(s.Actuals) != len(s.Dates) || len(s.Predictions) != len(s.Dates) {
		return fmt.Errorf("dates/actuals/predictions lengths differ: %d/%d/%d",
			len(s.Dates), len(s.Actuals), len(s.Predictions))
	}
	for i := 1; i < len(s.Dates); i++ {
		if !s.Dates[i].After(s.Dates[i-1]) {
			return fmt.Errorf("dates not strictly ascending at %s", features.FormatMonth(s.Dates[i]))
		}
	}
	return nil
}

// Metrics is the accuracy snapshot computed at save time.
type Metrics struct {
	MAE  float64
	RMSE float64
	MAPE float64
	R2   float64
	MASE float64
}

// Rounded applies the output rounding convention: MAE, RMSE and MAPE to two
// decimals, R2 and MASE to three.
func (m Metrics) Rounded() Metrics {
	return Metrics{
		MAE:  Round(m.MAE, 2),
		RMSE: Round(m.RMSE, 2),
		MAPE: Round(m.MAPE, 2),
		R2:   Round(m.R2, 3),
		MASE: Round(m.MASE, 3),
	}
}

// Snapshot returns the rounded metrics as a boundary record.
func (m Metrics) Snapshot() models.MetricSnapshot {
	r := m.Rounded()
	return models.MetricSnapshot{MAE: r.MAE, RMSE: r.RMSE, MAPE: r.MAPE, R2: r.R2, MASE: r.MASE}
}

// Round rounds half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// Bundle is one barangay's hybrid forecaster. It is never mutated after
// Decode returns.
type Bundle struct {
	Municipality string
	Barangay     string

	Baseline inference.BaselineModel
	Residual inference.ResidualModel

	TrainingEnd time.Time
	// ValidationEnd is zero when the bundle carries no validation window.
	ValidationEnd time.Time

	Train      Series
	Validation Series

	Regressors map[Category][]string
	// WeatherData and SeasonalData hold the historical regressor values the
	// baseline was fit with, aligned to train ∪ validation dates.
	WeatherData  map[string][]float64
	SeasonalData map[string][]float64

	Metrics Metrics
	Schema  Schema
}

// Key builds the registry key for a municipality and barangay.
func Key(municipality, barangay string) string {
	return municipality + "_" + barangay
}

// Key returns the bundle's registry key.
func (b *Bundle) Key() string {
	return Key(b.Municipality, b.Barangay)
}

// HasValidation reports whether the bundle carries a validation window.
func (b *Bundle) HasValidation() bool {
	return !b.ValidationEnd.IsZero()
}

// ForecastStart is the first month after all observed data.
func (b *Bundle) ForecastStart() time.Time {
	end := b.TrainingEnd
	if b.ValidationEnd.After(end) {
		end = b.ValidationEnd
	}
	return features.AddMonths(end, 1)
}

// RegressorColumns returns the metadata column list for a category.
func (b *Bundle) RegressorColumns(c Category) []string {
	return b.Regressors[c]
}

// UsesVaccination reports whether campaign indicators are regenerated for
// this bundle.
func (b *Bundle) UsesVaccination() bool {
	return b.Municipality == features.VaccinationMunicipality
}

// VaccinationColumns returns the campaign columns the bundle expects: the
// stored metadata when present, otherwise every lag column the campaign
// builder produces.
func (b *Bundle) VaccinationColumns() []string {
	if !b.UsesVaccination() {
		return nil
	}
	if cols := b.Regressors[Vaccination]; len(cols) > 0 {
		return cols
	}
	return features.VaccinationColumns()
}

// Validate checks the structural invariants of a bundle.
func (b *Bundle) Validate() error {
	if b.Municipality == "" || b.Barangay == "" {
		return fmt.Errorf("bundle missing municipality or barangay")
	}
	if b.Baseline == nil {
		return fmt.Errorf("bundle %s has no baseline model", b.Key())
	}
	if b.Residual == nil {
		return fmt.Errorf("bundle %s has no residual model", b.Key())
	}
	if b.TrainingEnd.IsZero() {
		return fmt.Errorf("bundle %s has no training end", b.Key())
	}
	if b.HasValidation() && b.ValidationEnd.Before(b.TrainingEnd) {
		return fmt.Errorf("bundle %s validation end %s precedes training end %s", b.Key(),
			features.FormatMonth(b.ValidationEnd), features.FormatMonth(b.TrainingEnd))
	}
	if err := b.Train.validate(); err != nil {
		return fmt.Errorf("bundle %s training series: %w", b.Key(), err)
	}
	if err := b.Validation.validate(); err != nil {
		return fmt.Errorf("bundle %s validation series: %w", b.Key(), err)
	}
	return nil
}

// HistoricalDates returns train ∪ validation dates, deduplicated and sorted,
// with the matching actuals. The first occurrence of a month wins.
func (b *Bundle) HistoricalDates() ([]time.Time, []float64) {
	byMonth := make(map[time.Time]float64, b.Train.Len()+b.Validation.Len())
	for _, s := range []Series{b.Train, b.Validation} {
		for i, d := range s.Dates {
			d = features.MonthStart(d)
			if _, seen := byMonth[d]; !seen {
				byMonth[d] = s.Actuals[i]
			}
		}
	}

	dates := make([]time.Time, 0, len(byMonth))
	for d := range byMonth {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	actuals := make([]float64, len(dates))
	for i, d := range dates {
		actuals[i] = byMonth[d]
	}
	return dates, actuals
}
