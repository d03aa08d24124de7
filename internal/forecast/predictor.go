// Package forecast runs the two-stage hybrid forecast: an additive baseline
// over a month-indexed regressor frame, corrected per month by the residual
// tree model and clamped at zero.
package forecast

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"rabiescast/internal/bundle"
	"rabiescast/internal/cache"
	"rabiescast/internal/features"
	"rabiescast/internal/inference"
	"rabiescast/internal/metrics"
	"rabiescast/internal/models"
)

var (
	// ErrUnavailable means no forecast could be computed. It never means
	// zero cases.
	ErrUnavailable = errors.New("forecast unavailable")

	// ErrFeatureContract is returned when a residual feature vector does not
	// match the fixed training order.
	ErrFeatureContract = errors.New("feature vector contract violated")
)

// Point is one forecast month.
type Point struct {
	Date      time.Time
	Predicted float64
}

type cacheKey struct {
	bundle  *bundle.Bundle
	horizon int
}

// Predictor computes hybrid forecasts. It is safe for concurrent use.
type Predictor struct {
	logger logrus.FieldLogger
	memo   *cache.LRU[cacheKey, []Point]
}

// NewPredictor creates a predictor. cacheSize of zero disables memoization.
func NewPredictor(logger logrus.FieldLogger, cacheSize int) (*Predictor, error) {
	p := &Predictor{logger: logger}
	if cacheSize > 0 {
		memo, err := cache.New[cacheKey, []Point](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create forecast cache: %w", err)
		}
		p.memo = memo
	}
	return p, nil
}

// CacheStats reports memoization counters; zero when caching is disabled.
func (p *Predictor) CacheStats() cache.Stats {
	if p.memo == nil {
		return cache.Stats{}
	}
	return p.memo.Stats()
}

// DateRange returns horizon consecutive month starts from the bundle's
// forecast start.
func DateRange(b *bundle.Bundle, horizon int) []time.Time {
	return features.MonthRange(b.ForecastStart(), horizon)
}

// Forecast predicts horizon months after the last observed month. Any
// failure yields ErrUnavailable and no partial results.
func (p *Predictor) Forecast(b *bundle.Bundle, horizon int) ([]Point, error) {
	if horizon < 1 {
		return nil, fmt.Errorf("%w: horizon must be positive, got %d", ErrUnavailable, horizon)
	}

	key := cacheKey{bundle: b, horizon: horizon}
	if p.memo != nil {
		if points, ok := p.memo.Get(key); ok {
			return clonePoints(points), nil
		}
	}

	start := time.Now()
	points, stage, err := p.run(b, horizon)
	metrics.RecordInference("forecast", time.Since(start), err)
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"municipality": b.Municipality,
			"barangay":     b.Barangay,
			"stage":        stage,
			"horizon":      horizon,
		}).WithError(err).Error("Forecast failed")
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, stage, err)
	}

	if p.memo != nil {
		p.memo.Set(key, clonePoints(points))
	}
	return points, nil
}

// NextMonth predicts the single month after the last observed month.
func (p *Predictor) NextMonth(b *bundle.Bundle) (Point, error) {
	points, err := p.Forecast(b, 1)
	if err != nil {
		return Point{}, err
	}
	return points[0], nil
}

func (p *Predictor) run(b *bundle.Bundle, horizon int) ([]Point, string, error) {
	dates := DateRange(b, horizon)
	frame := features.NewFrame(dates)
	if err := AttachRegressors(frame, b, false); err != nil {
		return nil, "regressors", err
	}

	decomposition, err := b.Baseline.Predict(frame)
	if err != nil {
		return nil, "baseline", err
	}
	baseline, ok := decomposition.Column(forecastColumn(b))
	if !ok {
		return nil, "baseline", fmt.Errorf("baseline output has no %s column", forecastColumn(b))
	}
	if len(baseline) != len(dates) {
		return nil, "baseline", fmt.Errorf("baseline returned %d rows for %d dates", len(baseline), len(dates))
	}

	if err := CheckModelFeatures(b.Residual.FeatureNames()); err != nil {
		return nil, "feature_vector", err
	}

	points := make([]Point, len(dates))
	for i, date := range dates {
		x, err := NewFeatureVector(date, baseline[i]).Values()
		if err != nil {
			return nil, "feature_vector", err
		}
		residual, err := b.Residual.Predict(x)
		if err != nil {
			return nil, "residual", err
		}
		hybrid := baseline[i] + residual
		if math.IsNaN(hybrid) || math.IsInf(hybrid, 0) {
			return nil, "residual", fmt.Errorf("non-finite prediction for %s", features.FormatMonth(date))
		}
		points[i] = Point{Date: date, Predicted: math.Max(0, hybrid)}
	}
	return points, "", nil
}

func forecastColumn(b *bundle.Bundle) string {
	if b.Schema.Forecast != "" {
		return b.Schema.Forecast
	}
	return inference.ColumnForecast
}

func clonePoints(points []Point) []Point {
	out := make([]Point, len(points))
	copy(out, points)
	return out
}

// ToRecords converts points to boundary records with YYYY-MM dates and
// predictions rounded to one decimal.
func ToRecords(points []Point) []models.ForecastPoint {
	out := make([]models.ForecastPoint, len(points))
	for i, pt := range points {
		out[i] = models.ForecastPoint{
			Date:      features.FormatMonth(pt.Date),
			Predicted: bundle.Round(pt.Predicted, 1),
		}
	}
	return out
}
