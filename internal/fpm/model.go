// Package fpm assesses rabies risk from monthly weather using association
// rules mined from historical weather and case records.
package fpm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// ErrUnavailable is returned when no pattern model is loaded.
var ErrUnavailable = errors.New("FPM model not loaded")

// Weather fields a rule condition can reference.
const (
	FieldTemperature   = "temperature"
	FieldHumidity      = "humidity"
	FieldPrecipitation = "precipitation"
	FieldWind          = "wind"
	FieldSunshine      = "sunshine"
)

// Rule kinds.
const (
	KindHigh = "high"
	KindLow  = "low"
)

// Edge is a bin boundary. JSON accepts numbers or the strings "inf" and
// "-inf" for open-ended bins.
type Edge float64

// UnmarshalJSON implements json.Unmarshaler.
func (e *Edge) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*e = Edge(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("bin edge must be a number or infinity string: %s", data)
	}
	switch strings.ToLower(s) {
	case "inf", "+inf", "infinity":
		*e = Edge(math.Inf(1))
	case "-inf", "-infinity":
		*e = Edge(math.Inf(-1))
	default:
		return fmt.Errorf("invalid bin edge %q", s)
	}
	return nil
}

// Bins discretizes one weather measure. Labels[i] covers (Edges[i], Edges[i+1]].
type Bins struct {
	Edges  []Edge   `json:"bins"`
	Labels []string `json:"labels"`
}

// Label returns the label of the right-closed bin containing v, or
// UnknownLabel when v falls outside every bin.
func (b Bins) Label(v float64) string {
	if math.IsNaN(v) {
		return UnknownLabel
	}
	for i := 0; i+1 < len(b.Edges); i++ {
		if v > float64(b.Edges[i]) && v <= float64(b.Edges[i+1]) {
			return b.Labels[i]
		}
	}
	return UnknownLabel
}

func (b Bins) validate() error {
	if len(b.Labels) == 0 {
		return errors.New("no labels")
	}
	if len(b.Edges) != len(b.Labels)+1 {
		return fmt.Errorf("%d edges for %d labels", len(b.Edges), len(b.Labels))
	}
	for i := 1; i < len(b.Edges); i++ {
		if !(b.Edges[i] > b.Edges[i-1]) {
			return fmt.Errorf("edges not strictly increasing at %d", i)
		}
	}
	return nil
}

// UnknownLabel marks a value outside the configured bins.
const UnknownLabel = "Unknown"

// Thresholds holds the bins of all five weather measures.
type Thresholds struct {
	Temperature   Bins `json:"temperature"`
	Humidity      Bins `json:"humidity"`
	Precipitation Bins `json:"precipitation"`
	Wind          Bins `json:"wind"`
	Sunshine      Bins `json:"sunshine"`
}

func (t Thresholds) byField() map[string]Bins {
	return map[string]Bins{
		FieldTemperature:   t.Temperature,
		FieldHumidity:      t.Humidity,
		FieldPrecipitation: t.Precipitation,
		FieldWind:          t.Wind,
		FieldSunshine:      t.Sunshine,
	}
}

// Condition requires a field's label to be one of Allowed.
type Condition struct {
	Field   string   `json:"field"`
	Allowed []string `json:"allowed_labels"`
}

// Rule is a mined association rule with a risk direction.
type Rule struct {
	Kind       string      `json:"kind"`
	Pattern    string      `json:"pattern"`
	Conditions []Condition `json:"conditions"`
	Confidence float64     `json:"confidence"`
	Lift       float64     `json:"lift"`
}

// Matches reports whether every condition holds for c.
func (r Rule) Matches(c Categorized) bool {
	for _, cond := range r.Conditions {
		label := c.label(cond.Field)
		ok := false
		for _, allowed := range cond.Allowed {
			if label == allowed {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return len(r.Conditions) > 0
}

// Summary holds the mining run's counts.
type Summary struct {
	RabiesRelatedRules int     `json:"rabies_related_rules"`
	HighRiskRules      int     `json:"high_risk_rules"`
	LowRiskRules       int     `json:"low_risk_rules"`
	StrongestLift      float64 `json:"strongest_lift"`
	DataSource         string  `json:"data_source,omitempty"`
	BarangaysAnalyzed  string  `json:"barangays_analyzed,omitempty"`
}

// Model is a loaded pattern model. It is read-only after Load.
type Model struct {
	Thresholds Thresholds `json:"thresholds"`
	Rules      []Rule     `json:"rules"`
	Summary    Summary    `json:"summary"`
}

// DefaultRules are the strongest mined patterns, used when an artifact
// carries no structured rules.
var DefaultRules = []Rule{
	{
		Kind:    KindHigh,
		Pattern: "Very_High_Humidity + Calm + Wet_Month",
		Conditions: []Condition{
			{Field: FieldHumidity, Allowed: []string{"Very_High_Humidity"}},
			{Field: FieldWind, Allowed: []string{"Calm"}},
			{Field: FieldPrecipitation, Allowed: []string{"Wet_Month"}},
		},
		Confidence: 0.22,
		Lift:       3.44,
	},
	{
		Kind:    KindLow,
		Pattern: "Low_Humidity + Breezy + Dry_Month",
		Conditions: []Condition{
			{Field: FieldHumidity, Allowed: []string{"Low_Humidity"}},
			{Field: FieldWind, Allowed: []string{"Breezy"}},
			{Field: FieldPrecipitation, Allowed: []string{"Dry_Month"}},
		},
		Confidence: 0.194,
		Lift:       4.09,
	},
}

// Load reads a model from a JSON file.
func Load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FPM model: %w", err)
	}
	defer f.Close()

	m, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Decode parses and validates a model.
func Decode(r io.Reader) (*Model, error) {
	var m Model
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode FPM model: %w", err)
	}
	if len(m.Rules) == 0 {
		m.Rules = append([]Rule(nil), DefaultRules...)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Model) validate() error {
	for field, bins := range m.Thresholds.byField() {
		if err := bins.validate(); err != nil {
			return fmt.Errorf("invalid %s bins: %w", field, err)
		}
	}
	fields := m.Thresholds.byField()
	for i, r := range m.Rules {
		if r.Kind != KindHigh && r.Kind != KindLow {
			return fmt.Errorf("rule %d: unknown kind %q", i, r.Kind)
		}
		if len(r.Conditions) == 0 {
			return fmt.Errorf("rule %d: no conditions", i)
		}
		for _, c := range r.Conditions {
			if _, ok := fields[c.Field]; !ok {
				return fmt.Errorf("rule %d: unknown field %q", i, c.Field)
			}
		}
	}
	return nil
}

// first returns the first rule of kind that matches c.
func (m *Model) first(kind string, c Categorized) (Rule, bool) {
	for _, r := range m.Rules {
		if r.Kind == kind && r.Matches(c) {
			return r, true
		}
	}
	return Rule{}, false
}
