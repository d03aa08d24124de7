// Package inference evaluates the serialized numerical models that make up a
// barangay's hybrid forecaster: the additive seasonal baseline and the
// gradient-boosted residual trees.
package inference

import "rabiescast/internal/features"

// Output column names emitted by the additive baseline.
const (
	ColumnForecast        = "yhat1"
	ColumnTrend           = "trend"
	ColumnSeasonYearly    = "season_yearly"
	ColumnEventsAdditive  = "events_additive"
	EventColumnPrefix     = "event_"
	RegressorColumnPrefix = "future_regressor_"
)

// BaselineModel produces a per-row point forecast and its named
// decomposition for a month-indexed frame of regressors.
type BaselineModel interface {
	// Predict returns a frame over the same dates holding the point forecast
	// and every decomposition column listed by Columns.
	Predict(frame *features.Frame) (*features.Frame, error)
	// Columns lists the output column names Predict emits.
	Columns() []string
}

// ResidualModel corrects a baseline prediction from a fixed-order feature
// vector.
type ResidualModel interface {
	Predict(x []float64) (float64, error)
	// FeatureImportances is aligned to FeatureNames.
	FeatureImportances() []float64
	// FeatureNames is the column order the model was fit on; nil if unknown.
	FeatureNames() []string
}

// Describer is implemented by models that expose hyperparameters for
// explanation output.
type Describer interface {
	Describe() map[string]string
}
