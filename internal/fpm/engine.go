package fpm

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"rabiescast/internal/bundle"
	"rabiescast/internal/metrics"
	"rabiescast/internal/risk"
)

// Weather is one month of aggregated weather. Sunshine is in hours, not
// the seconds the daily archive reports.
type Weather struct {
	TempMeanC     float64 `json:"tmean_c"`
	RHPct         float64 `json:"rh_pct"`
	PrecipMM      float64 `json:"precip_mm"`
	WindMaxKmh    float64 `json:"wind_speed_10m_max_kmh"`
	SunshineHours float64 `json:"sunshine_hours"`
}

// DefaultWeather holds the values used for fields a request omits.
func DefaultWeather() Weather {
	return Weather{
		TempMeanC:     27,
		RHPct:         80,
		PrecipMM:      200,
		WindMaxKmh:    12,
		SunshineHours: 150,
	}
}

// Categorized is a weather record mapped onto bin labels.
type Categorized struct {
	Temperature   string `json:"temperature"`
	Humidity      string `json:"humidity"`
	Precipitation string `json:"precipitation"`
	Wind          string `json:"wind"`
	Sunshine      string `json:"sunshine"`
	PatternString string `json:"pattern_string"`
}

func (c Categorized) label(field string) string {
	switch field {
	case FieldTemperature:
		return c.Temperature
	case FieldHumidity:
		return c.Humidity
	case FieldPrecipitation:
		return c.Precipitation
	case FieldWind:
		return c.Wind
	case FieldSunshine:
		return c.Sunshine
	}
	return ""
}

// MatchedPattern describes the rule an assessment matched.
type MatchedPattern struct {
	Conditions string  `json:"conditions"`
	Confidence float64 `json:"confidence"`
	Lift       float64 `json:"lift"`
}

// ThresholdExplanation describes one rule direction's thresholds in plain terms.
type ThresholdExplanation struct {
	Humidity    string `json:"humidity"`
	Wind        string `json:"wind"`
	Rainfall    string `json:"rainfall"`
	Temperature string `json:"temperature"`
	Pattern     string `json:"pattern"`
}

type RuleExplanations struct {
	HighRiskThreshold ThresholdExplanation `json:"high_risk_threshold"`
	LowRiskThreshold  ThresholdExplanation `json:"low_risk_threshold"`
	WhyWeatherMatters []string             `json:"why_weather_matters"`
}

// ModelInfo summarises the loaded rule set.
type ModelInfo struct {
	TotalRules        int     `json:"total_rules"`
	HighRiskRules     int     `json:"high_risk_rules"`
	LowRiskRules      int     `json:"low_risk_rules"`
	StrongestLift     float64 `json:"strongest_lift"`
	DataSource        string  `json:"data_source,omitempty"`
	BarangaysAnalyzed string  `json:"barangays_analyzed,omitempty"`
}

// Insight is the engine's answer for one weather record.
type Insight struct {
	Available         bool              `json:"available"`
	Message           string            `json:"message,omitempty"`
	RiskLevel         risk.Level        `json:"risk_level,omitempty"`
	RiskColor         string            `json:"risk_color,omitempty"`
	Confidence        float64           `json:"confidence"`
	WeatherConditions *Categorized      `json:"weather_conditions,omitempty"`
	MatchedPattern    *MatchedPattern   `json:"matched_pattern"`
	Recommendations   []string          `json:"recommendations,omitempty"`
	RiskFactors       []string          `json:"risk_factors,omitempty"`
	WhyThisRisk       string            `json:"why_this_risk,omitempty"`
	RuleExplanations  *RuleExplanations `json:"rule_explanations,omitempty"`
	ModelInfo         *ModelInfo        `json:"model_info,omitempty"`
}

const (
	mediumConfidence = 0.15
	mediumLift       = 1.0
)

// Engine evaluates weather against a pattern model. A nil model makes every
// call report the engine as unavailable.
type Engine struct {
	model  *Model
	logger logrus.FieldLogger
}

// NewEngine creates an engine over m, which may be nil.
func NewEngine(m *Model, logger logrus.FieldLogger) *Engine {
	return &Engine{model: m, logger: logger}
}

// Available reports whether a model is loaded.
func (e *Engine) Available() bool {
	return e.model != nil
}

// Categorize labels every field of w. The pattern string uses humidity,
// wind and precipitation only.
func (e *Engine) Categorize(w Weather) (Categorized, error) {
	if e.model == nil {
		return Categorized{}, ErrUnavailable
	}
	t := e.model.Thresholds
	c := Categorized{
		Temperature:   t.Temperature.Label(w.TempMeanC),
		Humidity:      t.Humidity.Label(w.RHPct),
		Precipitation: t.Precipitation.Label(w.PrecipMM),
		Wind:          t.Wind.Label(w.WindMaxKmh),
		Sunshine:      t.Sunshine.Label(w.SunshineHours),
	}
	c.PatternString = fmt.Sprintf("Humidity: %s, Wind: %s, Rain: %s", c.Humidity, c.Wind, c.Precipitation)
	return c, nil
}

// verdict matches high rules before low rules; no match is Medium.
func (e *Engine) verdict(c Categorized) (risk.Level, *Rule) {
	if r, ok := e.model.first(KindHigh, c); ok {
		return risk.High, &r
	}
	if r, ok := e.model.first(KindLow, c); ok {
		return risk.Low, &r
	}
	return risk.Medium, nil
}

// Assess returns the verdict and supporting material for w. It never
// fails; a missing model yields Available=false.
func (e *Engine) Assess(w Weather) Insight {
	c, err := e.Categorize(w)
	if err != nil {
		return Insight{Available: false, Message: err.Error()}
	}

	level, rule := e.verdict(c)
	metrics.FPMAssessments.WithLabelValues(string(level)).Inc()

	in := Insight{
		Available:         true,
		RiskLevel:         level,
		RiskColor:         level.Color(),
		Confidence:        mediumConfidence,
		WeatherConditions: &c,
		RuleExplanations:  ruleExplanations(),
		ModelInfo:         e.modelInfo(),
	}
	if rule != nil {
		in.Confidence = bundle.Round(rule.Confidence, 3)
		in.MatchedPattern = &MatchedPattern{
			Conditions: rule.Pattern,
			Confidence: bundle.Round(rule.Confidence, 3),
			Lift:       bundle.Round(rule.Lift, 2),
		}
	}

	switch level {
	case risk.High:
		in.Recommendations = []string{
			"Send SMS alerts to health workers",
			"Stock up on PEP vaccines (expect higher cases)",
			"Deploy additional vaccination teams",
			"Launch public awareness campaigns",
			"Switch to daily case monitoring",
		}
		in.RiskFactors = []string{
			"Very high humidity (>85%) creates favorable conditions for animal behavior changes",
			"Calm winds (<15 km/h) reduce dispersion of animal scents, increasing animal encounters",
			"Wet months (>300mm rain) drive animals to seek shelter near human settlements",
			fmt.Sprintf("Combination of these 3 factors shows %sx stronger association with rabies cases", number(rule.Lift, 2)),
			fmt.Sprintf("Historical data: This pattern occurred in %s%% of high-case months", number(rule.Confidence*100, 1)),
		}
		in.WhyThisRisk = "Current weather conditions match the top high-risk pattern identified " +
			"from historical monthly records. This combination (Very High Humidity + Calm Winds + Heavy Rain) " +
			"has historically been associated with significantly higher rabies cases."
	case risk.Low:
		in.Recommendations = []string{
			"Continue routine surveillance",
			"Schedule community vaccination drives",
			"Reallocate resources to high-risk areas",
			"Maintain weekly monitoring",
		}
		in.RiskFactors = []string{
			"Low humidity (<70%) reduces animal stress and aggressive behavior",
			"Breezy winds (15-25 km/h) improve air circulation and reduce animal encounters",
			"Dry months (<100mm rain) mean animals stay in natural habitats",
			fmt.Sprintf("This pattern shows %sx stronger association with LOW/NO rabies cases", number(rule.Lift, 2)),
			fmt.Sprintf("Historical data: This pattern occurred in %s%% of low-case months", number(rule.Confidence*100, 1)),
		}
		in.WhyThisRisk = "Current weather conditions match the top low-risk pattern identified " +
			"from historical data. This combination has consistently been associated " +
			"with fewer rabies cases across multiple barangays and years."
	default:
		in.Recommendations = []string{
			"Monitor weather trends closely",
			"Maintain standard vaccination schedule",
			"Prepare contingency plans",
		}
		in.RiskFactors = []string{
			fmt.Sprintf("Humidity level (%s) is in the moderate range", c.Humidity),
			fmt.Sprintf("Wind conditions (%s) not strongly predictive", c.Wind),
			fmt.Sprintf("Rainfall (%s) shows mixed patterns", c.Precipitation),
			"No exact match to high-risk or low-risk patterns",
			"Proceed with standard prevention protocols while monitoring trends",
		}
		in.WhyThisRisk = "Current weather conditions do not match any strong high-risk or low-risk pattern. " +
			"This suggests moderate risk: not alarming, but worth monitoring. " +
			"The weather factors present have no strong historical association with extreme rabies cases."
	}

	e.logger.WithFields(logrus.Fields{
		"pattern": c.PatternString,
		"level":   level,
	}).Debug("Weather pattern assessed")
	return in
}

func (e *Engine) modelInfo() *ModelInfo {
	s := e.model.Summary
	return &ModelInfo{
		TotalRules:        s.RabiesRelatedRules,
		HighRiskRules:     s.HighRiskRules,
		LowRiskRules:      s.LowRiskRules,
		StrongestLift:     s.StrongestLift,
		DataSource:        s.DataSource,
		BarangaysAnalyzed: s.BarangaysAnalyzed,
	}
}

func ruleExplanations() *RuleExplanations {
	return &RuleExplanations{
		HighRiskThreshold: ThresholdExplanation{
			Humidity:    "> 85% (Very High Humidity)",
			Wind:        "< 15 km/h (Calm)",
			Rainfall:    "> 300mm (Wet Month)",
			Temperature: "25-30°C (Warm)",
			Pattern:     "Very_High_Humidity + Calm + Wet_Month -> VERY HIGH RABIES CASES",
		},
		LowRiskThreshold: ThresholdExplanation{
			Humidity:    "< 70% (Low Humidity)",
			Wind:        "15-25 km/h (Breezy)",
			Rainfall:    "< 100mm (Dry Month)",
			Temperature: "Any (not a strong factor)",
			Pattern:     "Low_Humidity + Breezy + Dry_Month -> LOW/NO RABIES CASES",
		},
		WhyWeatherMatters: []string{
			"Heavy rainfall forces stray animals to seek shelter near homes",
			"High humidity increases animal stress and aggression",
			"Calm winds concentrate animal scents, attracting more animals to areas",
			"Moderate temperatures (25-30°C) keep animals more active",
			"Combined factors increase human-animal encounters",
		},
	}
}

// number formats v rounded to decimals without trailing zeros.
func number(v float64, decimals int) string {
	return strconv.FormatFloat(bundle.Round(v, decimals), 'f', -1, 64)
}
