package bundle

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"rabiescast/internal/features"
	"rabiescast/internal/inference"
)

// Artifact is the on-disk JSON form of a bundle.
type Artifact struct {
	Municipality  string               `json:"municipality"`
	Barangay      string               `json:"barangay"`
	TrainingEnd   string               `json:"training_end"`
	ValidationEnd string               `json:"validation_end,omitempty"`
	Train         SeriesArtifact       `json:"train"`
	Validation    SeriesArtifact       `json:"validation"`
	Regressors    map[string][]string  `json:"regressors,omitempty"`
	WeatherData   map[string][]float64 `json:"weather_data,omitempty"`
	SeasonalData  map[string][]float64 `json:"seasonal_data,omitempty"`
	Metrics       map[string]float64   `json:"metrics,omitempty"`
	Baseline      json.RawMessage      `json:"baseline"`
	Residual      json.RawMessage      `json:"residual"`
}

// SeriesArtifact is a serialized Series with YYYY-MM or YYYY-MM-DD dates.
type SeriesArtifact struct {
	Dates       []string  `json:"dates"`
	Actuals     []float64 `json:"actuals"`
	Predictions []float64 `json:"predictions"`
}

// Load reads and decodes a bundle artifact from path.
func Load(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	defer f.Close()

	b, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// Decode parses an artifact, builds both models, resolves the output schema
// and validates the result.
func Decode(r io.Reader) (*Bundle, error) {
	var a Artifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}
	return a.Build()
}

// Build converts the artifact into a validated Bundle.
func (a *Artifact) Build() (*Bundle, error) {
	b := &Bundle{
		Municipality: a.Municipality,
		Barangay:     a.Barangay,
		Regressors:   make(map[Category][]string, len(a.Regressors)),
		WeatherData:  a.WeatherData,
		SeasonalData: a.SeasonalData,
		Metrics:      ResolveMetrics(a.Metrics),
	}

	var err error
	if b.TrainingEnd, err = features.ParseMonth(a.TrainingEnd); err != nil {
		return nil, fmt.Errorf("invalid training_end: %w", err)
	}
	if a.ValidationEnd != "" {
		if b.ValidationEnd, err = features.ParseMonth(a.ValidationEnd); err != nil {
			return nil, fmt.Errorf("invalid validation_end: %w", err)
		}
	}
	if b.Train, err = a.Train.build(); err != nil {
		return nil, fmt.Errorf("training series: %w", err)
	}
	if b.Validation, err = a.Validation.build(); err != nil {
		return nil, fmt.Errorf("validation series: %w", err)
	}
	if !b.HasValidation() && b.Validation.Len() > 0 {
		b.ValidationEnd = b.Validation.Dates[b.Validation.Len()-1]
	}

	for name, cols := range a.Regressors {
		switch c := Category(name); c {
		case Weather, Vaccination, Seasonal:
			b.Regressors[c] = cols
		default:
			return nil, fmt.Errorf("unknown regressor category %q", name)
		}
	}

	baseline, err := inference.NewAdditive(a.Baseline)
	if err != nil {
		return nil, err
	}
	residual, err := inference.NewTreeEnsemble(a.Residual)
	if err != nil {
		return nil, err
	}
	b.Baseline, b.Residual = baseline, residual

	if b.Schema, err = ResolveSchema(baseline.Columns(), b.contributionColumns()); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// contributionColumns lists every regressor whose contribution the
// explanation output reports.
func (b *Bundle) contributionColumns() []string {
	var cols []string
	cols = append(cols, b.Regressors[Weather]...)
	cols = append(cols, b.VaccinationColumns()...)
	cols = append(cols, b.Regressors[Seasonal]...)
	return cols
}

func (s SeriesArtifact) build() (Series, error) {
	out := Series{
		Dates:       make([]time.Time, len(s.Dates)),
		Actuals:     s.Actuals,
		Predictions: s.Predictions,
	}
	for i, d := range s.Dates {
		t, err := features.ParseMonth(d)
		if err != nil {
			return Series{}, err
		}
		out.Dates[i] = t
	}
	if out.Actuals == nil {
		out.Actuals = []float64{}
	}
	if out.Predictions == nil {
		out.Predictions = []float64{}
	}
	return out, nil
}
