package risk

import (
	"fmt"
	"strings"
	"time"
)

// Thresholds are monthly case counts for one municipality.
type Thresholds struct {
	High   float64 `yaml:"high" json:"high"`
	Medium float64 `yaml:"medium" json:"medium"`
	Low    float64 `yaml:"low" json:"low"`
}

// Validate requires strictly descending, positive thresholds.
func (t Thresholds) Validate() error {
	if !(t.High > t.Medium && t.Medium > t.Low && t.Low > 0) {
		return fmt.Errorf("thresholds must satisfy high > medium > low > 0, got %v/%v/%v", t.High, t.Medium, t.Low)
	}
	return nil
}

// DefaultMunicipality supplies thresholds for municipalities without their own.
const DefaultMunicipality = "TAYTAY"

// DefaultThresholds are the per-municipality alert levels.
var DefaultThresholds = map[string]Thresholds{
	"CITY OF ANTIPOLO": {High: 50, Medium: 30, Low: 15},
	"TAYTAY":           {High: 30, Medium: 20, Low: 10},
	"CAINTA":           {High: 40, Medium: 25, Low: 12},
	"ANGONO":           {High: 35, Medium: 20, Low: 10},
}

// DefaultDrySeason lists the months with elevated baseline risk.
var DefaultDrySeason = []time.Month{time.January, time.February, time.March, time.April, time.May}

const (
	drySeasonSurgeFactor = 1.5
	offSeasonSurgeFactor = 2.0
)

// ThresholdPolicy is the legacy absolute-threshold alerting policy.
type ThresholdPolicy struct {
	thresholds map[string]Thresholds
	fallback   Thresholds
	drySeason  map[time.Month]bool
}

// NewThresholdPolicy validates every threshold set. fallback must name one
// of them.
func NewThresholdPolicy(thresholds map[string]Thresholds, fallback string, drySeason []time.Month) (*ThresholdPolicy, error) {
	p := &ThresholdPolicy{
		thresholds: make(map[string]Thresholds, len(thresholds)),
		drySeason:  make(map[time.Month]bool, len(drySeason)),
	}
	for m, t := range thresholds {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("municipality %s: %w", m, err)
		}
		p.thresholds[strings.ToUpper(m)] = t
	}
	fb, ok := p.thresholds[strings.ToUpper(fallback)]
	if !ok {
		return nil, fmt.Errorf("default municipality %q has no thresholds", fallback)
	}
	p.fallback = fb
	for _, m := range drySeason {
		if m < time.January || m > time.December {
			return nil, fmt.Errorf("invalid dry season month %d", m)
		}
		p.drySeason[m] = true
	}
	return p, nil
}

// DefaultThresholdPolicy returns the policy built from the package defaults.
func DefaultThresholdPolicy() *ThresholdPolicy {
	p, err := NewThresholdPolicy(DefaultThresholds, DefaultMunicipality, DefaultDrySeason)
	if err != nil {
		panic(err)
	}
	return p
}

// For returns the thresholds applied to a municipality.
func (p *ThresholdPolicy) For(municipality string) Thresholds {
	if t, ok := p.thresholds[strings.ToUpper(municipality)]; ok {
		return t
	}
	return p.fallback
}

// All returns a copy of the configured thresholds keyed by municipality.
func (p *ThresholdPolicy) All() map[string]Thresholds {
	out := make(map[string]Thresholds, len(p.thresholds))
	for m, t := range p.thresholds {
		out[m] = t
	}
	return out
}

// Check classifies a predicted monthly count. It returns the exceeded
// threshold, zero for Normal.
func (p *ThresholdPolicy) Check(municipality string, predicted float64) (Level, float64, string) {
	t := p.For(municipality)
	switch {
	case predicted > t.High:
		return High, t.High, fmt.Sprintf("CRITICAL: %.0f cases (>%v threshold)", predicted, t.High)
	case predicted > t.Medium:
		return Medium, t.Medium, fmt.Sprintf("WARNING: %.0f cases (>%v threshold)", predicted, t.Medium)
	case predicted > t.Low:
		return Low, t.Low, fmt.Sprintf("ADVISORY: %.0f cases (>%v threshold)", predicted, t.Low)
	default:
		return Normal, 0, fmt.Sprintf("Normal: %.0f cases", predicted)
	}
}

// SeasonalSurge reports whether predicted exceeds the historical average by
// the season's factor.
func (p *ThresholdPolicy) SeasonalSurge(month time.Month, predicted, historicalAvg float64) (bool, string) {
	if p.drySeason[month] {
		if predicted > historicalAvg*drySeasonSurgeFactor {
			return true, "DRY-SEASON SURGE"
		}
		return false, "No surge"
	}
	if predicted > historicalAvg*offSeasonSurgeFactor {
		return true, "UNUSUAL SURGE"
	}
	return false, "No surge"
}
