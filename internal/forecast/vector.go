package forecast

import (
	"fmt"
	"math"
	"time"
)

var featureNames = []string{
	"Year",
	"Month",
	"lag_1",
	"lag_2",
	"rolling_mean_3",
	"rolling_std_3",
	"lag_12",
	"month_sin",
	"month_cos",
	"rate_of_change_1",
	"np_prediction",
}

// FeatureNames returns the column order the residual model is fit on.
func FeatureNames() []string {
	out := make([]string, len(featureNames))
	copy(out, featureNames)
	return out
}

// FeatureVector is the residual model's input for one month. The lag,
// rolling and rate-of-change fields stay zero at forecast time since no
// future actuals exist, and predicted values are not fed back into them.
type FeatureVector struct {
	Year          float64
	Month         float64
	Lag1          float64
	Lag2          float64
	RollingMean3  float64
	RollingStd3   float64
	Lag12         float64
	MonthSin      float64
	MonthCos      float64
	RateOfChange1 float64
	NPPrediction  float64
}

// NewFeatureVector builds the forecast-time vector for date with the
// baseline prediction placed last.
func NewFeatureVector(date time.Time, baseline float64) FeatureVector {
	m := float64(date.Month())
	return FeatureVector{
		Year:         float64(date.Year()),
		Month:        m,
		MonthSin:     math.Sin(2 * math.Pi * m / 12),
		MonthCos:     math.Cos(2 * math.Pi * m / 12),
		NPPrediction: baseline,
	}
}

type namedValue struct {
	name  string
	value float64
}

func (v FeatureVector) fields() []namedValue {
	return []namedValue{
		{"Year", v.Year},
		{"Month", v.Month},
		{"lag_1", v.Lag1},
		{"lag_2", v.Lag2},
		{"rolling_mean_3", v.RollingMean3},
		{"rolling_std_3", v.RollingStd3},
		{"lag_12", v.Lag12},
		{"month_sin", v.MonthSin},
		{"month_cos", v.MonthCos},
		{"rate_of_change_1", v.RateOfChange1},
		{"np_prediction", v.NPPrediction},
	}
}

// Names returns the field names in emission order.
func (v FeatureVector) Names() []string {
	fields := v.fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.name
	}
	return names
}

// Values returns the vector in the fixed order, after checking that the
// emitted order matches FeatureNames.
func (v FeatureVector) Values() ([]float64, error) {
	fields := v.fields()
	if len(fields) != len(featureNames) {
		return nil, fmt.Errorf("%w: %d fields, want %d", ErrFeatureContract, len(fields), len(featureNames))
	}
	values := make([]float64, len(fields))
	for i, f := range fields {
		if f.name != featureNames[i] {
			return nil, fmt.Errorf("%w: position %d is %s, want %s", ErrFeatureContract, i, f.name, featureNames[i])
		}
		values[i] = f.value
	}
	return values, nil
}

// CheckModelFeatures rejects a residual model fitted on a different column
// order. Models that do not declare their names are accepted.
func CheckModelFeatures(names []string) error {
	if names == nil {
		return nil
	}
	if len(names) != len(featureNames) {
		return fmt.Errorf("%w: model expects %d features, want %d", ErrFeatureContract, len(names), len(featureNames))
	}
	for i, name := range names {
		if name != featureNames[i] {
			return fmt.Errorf("%w: model feature %d is %s, want %s", ErrFeatureContract, i, name, featureNames[i])
		}
	}
	return nil
}
