// Package risk classifies barangay outbreak risk from hybrid forecasts.
//
// The relative policy compares the next months' forecast with the most
// recent observed months of the same barangay. The threshold policy is the
// older alert path that compares a next-month forecast against fixed
// per-municipality case counts.
package risk

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"rabiescast/internal/bundle"
	"rabiescast/internal/forecast"
	"rabiescast/internal/metrics"
	"rabiescast/internal/models"
)

// Level is a categorical risk label.
type Level string

const (
	High    Level = "HIGH"
	Medium  Level = "MEDIUM"
	Low     Level = "LOW"
	Unknown Level = "UNKNOWN"
	// Normal is only produced by the threshold policy.
	Normal Level = "NORMAL"
)

// Color returns the display color used by dashboards.
func (l Level) Color() string {
	switch l {
	case High:
		return "#d32f2f"
	case Medium:
		return "#f57c00"
	case Low, Normal:
		return "#388e3c"
	default:
		return "#666666"
	}
}

// severity orders levels for sorting, most severe first.
func (l Level) severity() int {
	switch l {
	case High:
		return 0
	case Medium:
		return 1
	case Low:
		return 2
	default:
		return 3
	}
}

const (
	// RecentWindow is how many trailing validation months form the baseline.
	RecentWindow = 8
	// DefaultHorizon is the forecast window compared against it.
	DefaultHorizon = 8

	highShareOfMax   = 0.8
	mediumShareOfAvg = 1.2
)

// Forecaster is the part of the hybrid predictor the classifiers need.
type Forecaster interface {
	Forecast(b *bundle.Bundle, horizon int) ([]forecast.Point, error)
}

// Assessment is the relative policy's result for one barangay.
type Assessment struct {
	Level        Level   `json:"risk_level"`
	Color        string  `json:"risk_color"`
	Reason       string  `json:"reason,omitempty"`
	RecentMonths int     `json:"recent_months"`
	RecentAvg    float64 `json:"recent_avg"`
	RecentMax    float64 `json:"recent_max"`
	ForecastAvg  float64 `json:"forecast_avg"`
}

// Snapshot converts the assessment into a storable record.
func (a Assessment) Snapshot(b *bundle.Bundle, at time.Time) models.RiskSnapshot {
	return models.RiskSnapshot{
		Municipality: b.Municipality,
		Barangay:     b.Barangay,
		Level:        string(a.Level),
		Reason:       a.Reason,
		ForecastAvg:  bundle.Round(a.ForecastAvg, 1),
		RecentAvg:    bundle.Round(a.RecentAvg, 1),
		RecentMax:    bundle.Round(a.RecentMax, 1),
		AssessedAt:   at,
	}
}

// Decide applies the relative thresholds. Both comparisons are strict.
func Decide(forecastAvg, recentAvg, recentMax float64) Level {
	switch {
	case forecastAvg > highShareOfMax*recentMax:
		return High
	case forecastAvg > mediumShareOfAvg*recentAvg:
		return Medium
	default:
		return Low
	}
}

// Classifier runs the relative recent-vs-forecast policy.
type Classifier struct {
	forecaster Forecaster
	horizon    int
	logger     logrus.FieldLogger
}

// NewClassifier creates a classifier. A non-positive horizon uses
// DefaultHorizon.
func NewClassifier(f Forecaster, horizon int, logger logrus.FieldLogger) *Classifier {
	if horizon < 1 {
		horizon = DefaultHorizon
	}
	return &Classifier{forecaster: f, horizon: horizon, logger: logger}
}

// Assess classifies one bundle. Missing history or an unavailable forecast
// yields Unknown with a reason rather than an error.
func (c *Classifier) Assess(b *bundle.Bundle) Assessment {
	a := c.assess(b)
	a.Color = a.Level.Color()
	metrics.RiskAssessments.WithLabelValues("relative", string(a.Level)).Inc()
	return a
}

func (c *Classifier) assess(b *bundle.Bundle) Assessment {
	actuals := b.Validation.Actuals
	if len(actuals) == 0 {
		return Assessment{Level: Unknown, Reason: "no validation actuals"}
	}

	n := len(actuals)
	if n > RecentWindow {
		n = RecentWindow
	}
	recent := actuals[len(actuals)-n:]
	a := Assessment{
		RecentMonths: n,
		RecentAvg:    stat.Mean(recent, nil),
		RecentMax:    floats.Max(recent),
	}

	points, err := c.forecaster.Forecast(b, c.horizon)
	if err != nil || len(points) == 0 {
		c.logger.WithFields(logrus.Fields{
			"municipality": b.Municipality,
			"barangay":     b.Barangay,
		}).WithError(err).Warn("Risk forecast unavailable")
		a.Level = Unknown
		a.Reason = "forecast unavailable"
		if err != nil {
			a.Reason = fmt.Sprintf("forecast unavailable: %v", err)
		}
		return a
	}

	// Averaged over the values the forecast endpoint reports.
	predicted := make([]float64, len(points))
	for i, p := range points {
		predicted[i] = bundle.Round(p.Predicted, 1)
	}
	a.ForecastAvg = stat.Mean(predicted, nil)
	a.Level = Decide(a.ForecastAvg, a.RecentAvg, a.RecentMax)

	c.logger.WithFields(logrus.Fields{
		"municipality": b.Municipality,
		"barangay":     b.Barangay,
		"recent_avg":   bundle.Round(a.RecentAvg, 1),
		"recent_max":   a.RecentMax,
		"forecast_avg": bundle.Round(a.ForecastAvg, 1),
		"level":        a.Level,
	}).Debug("Risk assessed")
	return a
}

// Counts tallies assessments per level for municipality summaries.
type Counts struct {
	High   int `json:"HIGH"`
	Medium int `json:"MEDIUM"`
	Low    int `json:"LOW"`
}

// Add records one level. Unknown is not counted.
func (c *Counts) Add(l Level) {
	switch l {
	case High:
		c.High++
	case Medium:
		c.Medium++
	case Low:
		c.Low++
	}
}
