// Package inferencetest provides scripted model fakes for tests of packages
// that drive the inference interfaces.
package inferencetest

import (
	"fmt"
	"sort"
	"sync"

	"rabiescast/internal/features"
	"rabiescast/internal/inference"
)

// Baseline returns scripted columns. Each column's values are taken by row
// position and must cover at least as many rows as the frame.
type Baseline struct {
	Outputs map[string][]float64
	// Required lists input columns Predict insists on.
	Required []string
	Err      error

	mu     sync.Mutex
	calls  int
	inputs []*features.Frame
}

// Predict implements inference.BaselineModel.
func (b *Baseline) Predict(frame *features.Frame) (*features.Frame, error) {
	b.mu.Lock()
	b.calls++
	b.inputs = append(b.inputs, frame.Clone())
	b.mu.Unlock()

	if b.Err != nil {
		return nil, b.Err
	}
	for _, col := range b.Required {
		if !frame.Has(col) {
			return nil, fmt.Errorf("missing regressor column %s", col)
		}
	}

	out := features.NewFrame(frame.Dates)
	for _, name := range b.Columns() {
		values := b.Outputs[name]
		if len(values) < frame.Len() {
			return nil, fmt.Errorf("scripted column %s has %d rows, frame has %d", name, len(values), frame.Len())
		}
		if err := out.SetColumn(name, values[:frame.Len()]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Columns implements inference.BaselineModel: scripted outputs sorted by
// name, forecast column last.
func (b *Baseline) Columns() []string {
	var cols []string
	for name := range b.Outputs {
		if name != inference.ColumnForecast {
			cols = append(cols, name)
		}
	}
	sort.Strings(cols)
	if _, ok := b.Outputs[inference.ColumnForecast]; ok {
		cols = append(cols, inference.ColumnForecast)
	}
	return cols
}

// Calls returns how many times Predict ran.
func (b *Baseline) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// LastInput returns a copy of the most recent frame passed to Predict.
func (b *Baseline) LastInput() *features.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.inputs) == 0 {
		return nil
	}
	return b.inputs[len(b.inputs)-1]
}

// Residual returns Values in call order and records each input vector.
type Residual struct {
	Values      []float64
	Importances []float64
	Names       []string
	Err         error

	mu     sync.Mutex
	inputs [][]float64
}

// Predict implements inference.ResidualModel.
func (r *Residual) Predict(x []float64) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return 0, r.Err
	}
	i := len(r.inputs)
	r.inputs = append(r.inputs, append([]float64(nil), x...))
	if i >= len(r.Values) {
		return 0, fmt.Errorf("no scripted residual for call %d", i)
	}
	return r.Values[i], nil
}

// FeatureImportances implements inference.ResidualModel.
func (r *Residual) FeatureImportances() []float64 {
	return r.Importances
}

// FeatureNames implements inference.ResidualModel.
func (r *Residual) FeatureNames() []string {
	return r.Names
}

// Inputs returns every vector passed to Predict.
func (r *Residual) Inputs() [][]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]float64(nil), r.inputs...)
}

// Reset clears recorded calls so scripted values replay from the start.
func (r *Residual) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = nil
}
