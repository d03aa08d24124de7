package risk

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"rabiescast/internal/bundle"
	"rabiescast/internal/features"
	"rabiescast/internal/metrics"
	"rabiescast/internal/models"
)

// legacyHistoricalAvg stands in for the training mean of bundles that carry
// no training actuals.
const legacyHistoricalAvg = 10

// ScanResult holds the outcome for a single barangay
type ScanResult struct {
	Key            string
	Alert          *models.Alert
	Error          error
	ProcessingTime time.Duration
}

// ScanSummary counts a scan's outcomes
type ScanSummary struct {
	Scanned  int
	Failed   int
	Alerts   int
	Duration time.Duration
	// Slowest is the longest single evaluation and the bundle it was for.
	Slowest    time.Duration
	SlowestKey string
}

// Scanner produces next-month threshold alerts over many bundles with a
// bounded worker pool.
type Scanner struct {
	policy     *ThresholdPolicy
	forecaster Forecaster
	workers    int
	logger     logrus.FieldLogger
	now        func() time.Time
}

// NewScanner creates a scanner. workers below one means a single worker.
func NewScanner(policy *ThresholdPolicy, f Forecaster, workers int, logger logrus.FieldLogger) *Scanner {
	if workers < 1 {
		workers = 1
	}
	return &Scanner{
		policy:     policy,
		forecaster: f,
		workers:    workers,
		logger:     logger,
		now:        time.Now,
	}
}

// Evaluate checks one bundle. It returns nil when neither a threshold nor a
// seasonal surge is triggered.
func (s *Scanner) Evaluate(b *bundle.Bundle) (*models.Alert, error) {
	points, err := s.forecaster.Forecast(b, 1)
	if err != nil {
		return nil, err
	}
	next := points[0]

	historicalAvg := float64(legacyHistoricalAvg)
	if len(b.Train.Actuals) > 0 {
		historicalAvg = stat.Mean(b.Train.Actuals, nil)
	}

	level, threshold, message := s.policy.Check(b.Municipality, next.Predicted)
	surge, surgeMessage := s.policy.SeasonalSurge(next.Date.Month(), next.Predicted, historicalAvg)
	metrics.RiskAssessments.WithLabelValues("threshold", string(level)).Inc()
	if level == Normal && !surge {
		return nil, nil
	}

	return &models.Alert{
		Municipality:  b.Municipality,
		Barangay:      b.Barangay,
		ForecastMonth: features.FormatMonth(next.Date),
		Predicted:     bundle.Round(next.Predicted, 1),
		RiskLevel:     string(level),
		Threshold:     threshold,
		SeasonalSurge: surge,
		SeasonalAlert: surgeMessage,
		HistoricalAvg: bundle.Round(historicalAvg, 1),
		ModelMAE:      bundle.Round(b.Metrics.MAE, 2),
		Message:       message,
		CreatedAt:     s.now(),
	}, nil
}

// Scan evaluates every bundle and returns alerts sorted by severity, then by
// predicted cases descending. Failed bundles are logged and skipped.
func (s *Scanner) Scan(ctx context.Context, bundles []*bundle.Bundle) ([]models.Alert, ScanSummary) {
	startTime := time.Now()
	if len(bundles) == 0 {
		return []models.Alert{}, ScanSummary{}
	}

	numWorkers := s.workers
	if len(bundles) < numWorkers {
		numWorkers = len(bundles)
	}

	jobs := make(chan *bundle.Bundle, len(bundles))
	results := make(chan ScanResult, len(bundles))

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go s.worker(ctx, jobs, results, &wg)
	}

	for _, b := range bundles {
		jobs <- b
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	alerts := []models.Alert{}
	var summary ScanSummary
	for result := range results {
		summary.Scanned++
		if summary.SlowestKey == "" || result.ProcessingTime > summary.Slowest {
			summary.Slowest, summary.SlowestKey = result.ProcessingTime, result.Key
		}
		if result.Error != nil {
			s.logger.WithField("key", result.Key).WithError(result.Error).Warn("Alert evaluation failed")
			summary.Failed++
			continue
		}
		if result.Alert != nil {
			alerts = append(alerts, *result.Alert)
		}
	}

	SortAlerts(alerts)
	summary.Alerts = len(alerts)
	summary.Duration = time.Since(startTime)

	s.logger.WithFields(logrus.Fields{
		"scanned":         summary.Scanned,
		"failed":          summary.Failed,
		"alerts":          summary.Alerts,
		"workers":         numWorkers,
		"elapsed":         summary.Duration.Round(time.Millisecond).String(),
		"slowest":         summary.SlowestKey,
		"slowest_elapsed": summary.Slowest.Round(time.Millisecond).String(),
	}).Info("Alert scan complete")
	return alerts, summary
}

// worker evaluates bundles from the jobs channel
func (s *Scanner) worker(ctx context.Context, jobs <-chan *bundle.Bundle, results chan<- ScanResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for b := range jobs {
		startTime := time.Now()
		if err := ctx.Err(); err != nil {
			results <- ScanResult{Key: b.Key(), Error: err}
			continue
		}
		alert, err := s.Evaluate(b)
		results <- ScanResult{
			Key:            b.Key(),
			Alert:          alert,
			Error:          err,
			ProcessingTime: time.Since(startTime),
		}
	}
}

// SortAlerts orders alerts HIGH, MEDIUM, LOW, then anything else, breaking
// ties by predicted cases descending.
func SortAlerts(alerts []models.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		si, sj := Level(alerts[i].RiskLevel).severity(), Level(alerts[j].RiskLevel).severity()
		if si != sj {
			return si < sj
		}
		return alerts[i].Predicted > alerts[j].Predicted
	})
}

// FilterMunicipality keeps bundles of one municipality; empty keeps all.
func FilterMunicipality(bundles []*bundle.Bundle, municipality string) []*bundle.Bundle {
	if municipality == "" {
		return bundles
	}
	var out []*bundle.Bundle
	for _, b := range bundles {
		if b.Municipality == municipality {
			out = append(out, b)
		}
	}
	return out
}
