// Package registry maps (municipality, barangay) keys to loaded model
// bundles. A Registry is built once and never modified, so concurrent
// readers need no locking.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"rabiescast/internal/bundle"
	"rabiescast/internal/metrics"
)

// Registry is an immutable set of bundles keyed by bundle.Key.
type Registry struct {
	bundles map[string]*bundle.Bundle
	keys    []string
}

// MunicipalitySummary aggregates the bundles of one municipality.
type MunicipalitySummary struct {
	Municipality string   `json:"municipality"`
	Barangays    []string `json:"barangays"`
	Count        int      `json:"count"`
	AverageMAE   float64  `json:"avg_mae"`
}

// New builds a registry from already decoded bundles. Duplicate keys are an
// error.
func New(bundles ...*bundle.Bundle) (*Registry, error) {
	r := &Registry{bundles: make(map[string]*bundle.Bundle, len(bundles))}
	for _, b := range bundles {
		key := b.Key()
		if _, exists := r.bundles[key]; exists {
			return nil, fmt.Errorf("duplicate bundle %s", key)
		}
		r.bundles[key] = b
		r.keys = append(r.keys, key)
	}
	sort.Strings(r.keys)
	metrics.ModelsLoaded.Set(float64(len(r.keys)))
	return r, nil
}

// Load walks dir/<MUNICIPALITY>/*.json. A file that fails to decode is
// logged and skipped so one bad artifact does not hide the rest.
func Load(dir string, logger logrus.FieldLogger) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read model directory: %w", err)
	}

	var bundles []*bundle.Bundle
	seen := make(map[string]string)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		files, err := filepath.Glob(filepath.Join(dir, entry.Name(), "*.json"))
		if err != nil {
			return nil, err
		}
		sort.Strings(files)

		for _, path := range files {
			b, err := bundle.Load(path)
			if err != nil {
				metrics.ModelLoadErrors.Inc()
				logger.WithError(err).WithField("file", path).Warn("Failed to load bundle")
				continue
			}
			if prev, dup := seen[b.Key()]; dup {
				metrics.ModelLoadErrors.Inc()
				logger.WithFields(logrus.Fields{"file": path, "first": prev}).Warn("Duplicate bundle key, skipping")
				continue
			}
			seen[b.Key()] = path
			bundles = append(bundles, b)
		}
	}

	r, err := New(bundles...)
	if err != nil {
		return nil, err
	}
	logger.WithField("bundles", r.Len()).Info("Model registry loaded")
	return r, nil
}

// Get returns the bundle stored under the exact key.
func (r *Registry) Get(key string) (*bundle.Bundle, bool) {
	b, ok := r.bundles[key]
	return b, ok
}

// Lookup returns the bundle for a municipality and barangay, or
// bundle.ErrNotFound.
func (r *Registry) Lookup(municipality, barangay string) (*bundle.Bundle, error) {
	key := bundle.Key(municipality, barangay)
	b, ok := r.bundles[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", bundle.ErrNotFound, key)
	}
	return b, nil
}

// LookupFold is Lookup with a case-insensitive fallback when the exact key
// is absent.
func (r *Registry) LookupFold(municipality, barangay string) (*bundle.Bundle, error) {
	if b, err := r.Lookup(municipality, barangay); err == nil {
		return b, nil
	}
	want := bundle.Key(municipality, barangay)
	for _, key := range r.keys {
		if strings.EqualFold(key, want) {
			return r.bundles[key], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", bundle.ErrNotFound, want)
}

// Keys returns every key in ascending order.
func (r *Registry) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of bundles.
func (r *Registry) Len() int {
	return len(r.keys)
}

// All returns every bundle in key order.
func (r *Registry) All() []*bundle.Bundle {
	out := make([]*bundle.Bundle, len(r.keys))
	for i, key := range r.keys {
		out[i] = r.bundles[key]
	}
	return out
}

// Municipalities groups bundles by municipality, sorted by name.
func (r *Registry) Municipalities() []MunicipalitySummary {
	byName := make(map[string]*MunicipalitySummary)
	var names []string
	for _, key := range r.keys {
		b := r.bundles[key]
		s, ok := byName[b.Municipality]
		if !ok {
			s = &MunicipalitySummary{Municipality: b.Municipality}
			byName[b.Municipality] = s
			names = append(names, b.Municipality)
		}
		s.Barangays = append(s.Barangays, b.Barangay)
		s.AverageMAE += b.Metrics.MAE
		s.Count++
	}
	sort.Strings(names)

	out := make([]MunicipalitySummary, 0, len(names))
	for _, name := range names {
		s := byName[name]
		s.AverageMAE = bundle.Round(s.AverageMAE/float64(s.Count), 2)
		sort.Strings(s.Barangays)
		out = append(out, *s)
	}
	return out
}
