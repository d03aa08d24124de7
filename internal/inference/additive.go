package inference

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"rabiescast/internal/features"
)

// AdditiveParams is the serialized form of an additive seasonal baseline.
// The time index t is measured in months since Origin.
type AdditiveParams struct {
	Origin           string             `json:"origin"`
	Offset           float64            `json:"offset"`
	Slope            float64            `json:"slope"`
	Changepoints     []ChangepointParam `json:"changepoints"`
	ChangepointRange float64            `json:"changepoints_range"`
	YearlyFourier    [][2]float64       `json:"yearly_fourier"`
	Regressors       map[string]float64 `json:"regressors"`
	Events           []EventParam       `json:"events"`
}

// ChangepointParam adds Delta to the trend slope from At onwards.
type ChangepointParam struct {
	At    string  `json:"at"`
	Delta float64 `json:"delta"`
}

// EventParam is a named holiday/event with an additive effect in the listed
// months (YYYY-MM).
type EventParam struct {
	Name   string   `json:"name"`
	Months []string `json:"months"`
	Effect float64  `json:"effect"`
}

type changepoint struct {
	t     float64
	delta float64
}

type event struct {
	name   string
	months map[string]bool
	effect float64
}

// Additive is a piecewise-linear trend plus yearly Fourier seasonality,
// linear regressor terms and monthly event effects.
type Additive struct {
	origin           time.Time
	offset           float64
	slope            float64
	changepoints     []changepoint
	changepointRange float64
	fourier          [][2]float64
	regressorNames   []string
	regressors       map[string]float64
	events           []event
}

// NewAdditive decodes serialized additive parameters.
func NewAdditive(raw json.RawMessage) (*Additive, error) {
	var p AdditiveParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode baseline parameters: %w", err)
	}
	return NewAdditiveFromParams(p)
}

// NewAdditiveFromParams builds a baseline from already decoded parameters.
func NewAdditiveFromParams(p AdditiveParams) (*Additive, error) {
	origin, err := features.ParseMonth(p.Origin)
	if err != nil {
		return nil, fmt.Errorf("invalid baseline origin: %w", err)
	}

	m := &Additive{
		origin:           origin,
		offset:           p.Offset,
		slope:            p.Slope,
		changepointRange: p.ChangepointRange,
		fourier:          p.YearlyFourier,
		regressors:       make(map[string]float64, len(p.Regressors)),
	}

	for _, cp := range p.Changepoints {
		at, err := features.ParseMonth(cp.At)
		if err != nil {
			return nil, fmt.Errorf("invalid changepoint %q: %w", cp.At, err)
		}
		m.changepoints = append(m.changepoints, changepoint{t: m.index(at), delta: cp.Delta})
	}
	sort.Slice(m.changepoints, func(i, j int) bool { return m.changepoints[i].t < m.changepoints[j].t })

	for name, coef := range p.Regressors {
		m.regressors[name] = coef
		m.regressorNames = append(m.regressorNames, name)
	}
	sort.Strings(m.regressorNames)

	for _, e := range p.Events {
		if e.Name == "" {
			return nil, fmt.Errorf("event with empty name")
		}
		months := make(map[string]bool, len(e.Months))
		for _, s := range e.Months {
			at, err := features.ParseMonth(s)
			if err != nil {
				return nil, fmt.Errorf("invalid month %q for event %s: %w", s, e.Name, err)
			}
			months[features.FormatMonth(at)] = true
		}
		m.events = append(m.events, event{name: e.Name, months: months, effect: e.Effect})
	}

	return m, nil
}

// Columns lists the decomposition columns Predict emits.
func (m *Additive) Columns() []string {
	cols := []string{ColumnTrend}
	if len(m.fourier) > 0 {
		cols = append(cols, ColumnSeasonYearly)
	}
	for _, name := range m.regressorNames {
		cols = append(cols, RegressorColumnPrefix+name)
	}
	for _, e := range m.events {
		cols = append(cols, EventColumnPrefix+e.name)
	}
	if len(m.events) > 0 {
		cols = append(cols, ColumnEventsAdditive)
	}
	return append(cols, ColumnForecast)
}

// Predict evaluates every component for each row of frame. A regressor the
// model was fit with but the frame lacks is an error.
func (m *Additive) Predict(frame *features.Frame) (*features.Frame, error) {
	inputs := make(map[string][]float64, len(m.regressorNames))
	for _, name := range m.regressorNames {
		values, ok := frame.Column(name)
		if !ok {
			return nil, fmt.Errorf("missing regressor column %s", name)
		}
		inputs[name] = values
	}

	n := frame.Len()
	trend := make([]float64, n)
	season := make([]float64, n)
	yhat := make([]float64, n)
	contributions := make(map[string][]float64, len(m.regressorNames))
	for _, name := range m.regressorNames {
		contributions[name] = make([]float64, n)
	}
	eventCols := make([][]float64, len(m.events))
	for i := range eventCols {
		eventCols[i] = make([]float64, n)
	}
	eventsTotal := make([]float64, n)

	for i, date := range frame.Dates {
		t := m.index(date)
		trend[i] = m.trendAt(t)
		season[i] = m.seasonAt(date)
		yhat[i] = trend[i] + season[i]

		for _, name := range m.regressorNames {
			c := m.regressors[name] * inputs[name][i]
			contributions[name][i] = c
			yhat[i] += c
		}

		key := features.FormatMonth(date)
		for j, e := range m.events {
			if e.months[key] {
				eventCols[j][i] = e.effect
				eventsTotal[i] += e.effect
			}
		}
		yhat[i] += eventsTotal[i]
	}

	out := features.NewFrame(frame.Dates)
	out.SetColumn(ColumnTrend, trend)
	if len(m.fourier) > 0 {
		out.SetColumn(ColumnSeasonYearly, season)
	}
	for _, name := range m.regressorNames {
		out.SetColumn(RegressorColumnPrefix+name, contributions[name])
	}
	for j, e := range m.events {
		out.SetColumn(EventColumnPrefix+e.name, eventCols[j])
	}
	if len(m.events) > 0 {
		out.SetColumn(ColumnEventsAdditive, eventsTotal)
	}
	out.SetColumn(ColumnForecast, yhat)

	for _, v := range yhat {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("baseline produced non-finite value")
		}
	}
	return out, nil
}

// Describe reports the trend configuration.
func (m *Additive) Describe() map[string]string {
	cpRange := "N/A"
	if m.changepointRange > 0 {
		cpRange = strconv.FormatFloat(m.changepointRange, 'f', -1, 64)
	}
	return map[string]string{
		"changepoints_range": cpRange,
		"changepoints":       strconv.Itoa(len(m.changepoints)),
		"events":             strconv.Itoa(len(m.events)),
	}
}

func (m *Additive) index(date time.Time) float64 {
	date = features.MonthStart(date)
	return float64((date.Year()-m.origin.Year())*12 + int(date.Month()) - int(m.origin.Month()))
}

func (m *Additive) trendAt(t float64) float64 {
	v := m.offset + m.slope*t
	for _, cp := range m.changepoints {
		if t < cp.t {
			break
		}
		v += cp.delta * (t - cp.t)
	}
	return v
}

func (m *Additive) seasonAt(date time.Time) float64 {
	phase := 2 * math.Pi * float64(date.Month()-1) / 12
	v := 0.0
	for k, ab := range m.fourier {
		order := float64(k + 1)
		v += ab[0]*math.Sin(order*phase) + ab[1]*math.Cos(order*phase)
	}
	return v
}
