package fpm

import (
	"fmt"
	"math"
	"time"

	"rabiescast/internal/bundle"
	"rabiescast/internal/features"
	"rabiescast/internal/risk"
)

// TimelineWeather is the rounded raw weather shown for a timeline month.
type TimelineWeather struct {
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
	Precipitation float64 `json:"precipitation"`
	WindSpeed     float64 `json:"wind_speed"`
	Sunshine      float64 `json:"sunshine"`
}

// TimelineEntry compares one validation month's model error with the
// weather verdict for that month.
type TimelineEntry struct {
	Date              string          `json:"date"`
	DateDisplay       string          `json:"date_display"`
	ActualCases       int             `json:"actual_cases"`
	PredictedCases    int             `json:"predicted_cases"`
	Error             int             `json:"error"`
	ErrorPct          float64         `json:"error_pct"`
	Weather           TimelineWeather `json:"weather"`
	WeatherCategories Categorized     `json:"weather_categories"`
	FPMRisk           risk.Level      `json:"fpm_risk"`
	FPMConfidence     float64         `json:"fpm_confidence"`
	FPMLift           float64         `json:"fpm_lift"`
	Interpretation    string          `json:"interpretation"`
}

// accurateErrorPct is the relative error below which a Medium month counts
// as accurately predicted.
const accurateErrorPct = 20

// Timeline explains each validation month of b for which weather, keyed
// by month start, is available. Months without weather are skipped. It
// returns an empty timeline when no model is loaded.
func (e *Engine) Timeline(b *bundle.Bundle, weather map[time.Time]Weather) []TimelineEntry {
	out := []TimelineEntry{}
	if e.model == nil || len(weather) == 0 {
		return out
	}

	v := b.Validation
	for i, date := range v.Dates {
		month := features.MonthStart(date)
		w, ok := weather[month]
		if !ok {
			continue
		}
		c, err := e.Categorize(w)
		if err != nil {
			continue
		}

		level, rule := e.verdict(c)
		confidence, lift := mediumConfidence, mediumLift
		if rule != nil {
			confidence, lift = rule.Confidence, rule.Lift
		}

		actual, predicted := v.Actuals[i], v.Predictions[i]
		diff := predicted - actual
		errorPct := diff / math.Max(actual, 1) * 100

		out = append(out, TimelineEntry{
			Date:           features.FormatMonth(month),
			DateDisplay:    month.Format("January 2006"),
			ActualCases:    int(actual),
			PredictedCases: int(predicted),
			Error:          int(diff),
			ErrorPct:       bundle.Round(errorPct, 1),
			Weather: TimelineWeather{
				Temperature:   bundle.Round(w.TempMeanC, 1),
				Humidity:      bundle.Round(w.RHPct, 1),
				Precipitation: bundle.Round(w.PrecipMM, 0),
				WindSpeed:     bundle.Round(w.WindMaxKmh, 1),
				Sunshine:      bundle.Round(w.SunshineHours, 0),
			},
			WeatherCategories: c,
			FPMRisk:           level,
			FPMConfidence:     bundle.Round(confidence, 3),
			FPMLift:           bundle.Round(lift, 2),
			Interpretation:    interpret(level, lift, actual, predicted, diff, errorPct),
		})
	}
	return out
}

func interpret(level risk.Level, lift, actual, predicted, diff, errorPct float64) string {
	absErr, absPct := math.Abs(diff), math.Abs(errorPct)
	switch level {
	case risk.High:
		switch {
		case actual > predicted:
			return fmt.Sprintf("FPM correctly identified HIGH RISK weather (Lift=%sx). Model UNDERPREDICTED by %.0f cases (%.1f%%) likely because extreme weather conditions exceeded training patterns.", number(lift, 2), absErr, absPct)
		case actual < predicted:
			return fmt.Sprintf("FPM identified HIGH RISK weather, but cases were LOWER than predicted. Model OVERPREDICTED by %.0f cases (%.1f%%), possibly due to effective interventions during risky weather.", absErr, absPct)
		default:
			return "FPM correctly identified HIGH RISK weather. Model prediction closely matched actual cases, accounting for weather-driven increase."
		}
	case risk.Low:
		switch {
		case actual < predicted:
			return fmt.Sprintf("FPM correctly identified LOW RISK weather (Lift=%sx). Model OVERPREDICTED by %.0f cases (%.1f%%) because favorable weather reduced cases below seasonal trend.", number(lift, 2), absErr, absPct)
		case actual > predicted:
			return fmt.Sprintf("FPM identified LOW RISK weather, but cases were HIGHER than predicted. Model UNDERPREDICTED by %.0f cases (%.1f%%), suggesting non-weather factors drove cases.", absErr, absPct)
		default:
			return "FPM correctly identified LOW RISK weather. Model prediction aligned well with actual cases."
		}
	default:
		switch {
		case absPct < accurateErrorPct:
			return fmt.Sprintf("MEDIUM RISK weather (no strong FPM pattern). Model prediction was accurate (error: %.0f cases, %.1f%%).", diff, absPct)
		case actual > predicted:
			return fmt.Sprintf("MEDIUM RISK weather. Model UNDERPREDICTED by %.0f cases (%.1f%%). Other factors beyond weather may have driven increase.", absErr, absPct)
		default:
			return fmt.Sprintf("MEDIUM RISK weather. Model OVERPREDICTED by %.0f cases (%.1f%%). Actual cases lower than expected.", absErr, absPct)
		}
	}
}
