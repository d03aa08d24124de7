package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Model and inference metrics
var (
	// ModelsLoaded is the number of bundles in the registry
	ModelsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rabiescast_models_loaded",
			Help: "Number of barangay model bundles currently loaded",
		},
	)

	// ModelLoadErrors counts artifacts skipped at load time
	ModelLoadErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rabiescast_model_load_errors_total",
			Help: "Total number of model artifacts that failed to load",
		},
	)

	// InferenceCalls tracks hybrid pipeline calls by stage outcome
	InferenceCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_calls_total",
			Help: "Total number of inference calls by stage and status",
		},
		[]string{"stage", "status"},
	)

	// InferenceDuration tracks end-to-end latency of forecast and explanation calls
	InferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inference_duration_seconds",
			Help:    "Duration of inference calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// RiskAssessments counts risk classifications by policy and level
	RiskAssessments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_assessments_total",
			Help: "Total number of risk classifications by policy and level",
		},
		[]string{"policy", "level"},
	)

	// FPMAssessments counts weather pattern verdicts
	FPMAssessments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fpm_assessments_total",
			Help: "Total number of weather pattern assessments by level",
		},
		[]string{"level"},
	)

	// AlertsPublished counts alerts written to the stream
	AlertsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_published_total",
			Help: "Total number of alerts published by risk level",
		},
		[]string{"level"},
	)

	// WeatherFetches counts archive API requests
	WeatherFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weather_fetches_total",
			Help: "Total number of weather archive requests",
		},
		[]string{"status"},
	)
)

// Database metrics
var (
	// DBQueriesTotal tracks the total number of database queries
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_queries_total",
			Help: "Total number of database queries executed",
		},
		[]string{"query_type", "table", "status"},
	)

	// DBQueryDuration tracks the duration of database queries
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query_type", "table"},
	)

	// DBConnectionsOpen tracks the number of open database connections
	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_open",
			Help: "Number of established connections both in use and idle",
		},
	)

	// DBConnectionsInUse tracks the number of connections currently in use
	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_in_use",
			Help: "Number of connections currently in use",
		},
	)

	// DBConnectionsIdle tracks the number of idle connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle connections",
		},
	)

	// AppInfo provides static information about the application
	AppInfo = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rabiescast_app_info",
			Help: "Application information (always 1)",
		},
	)

	// AppStartTime records when the application started
	AppStartTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rabiescast_app_start_time_seconds",
			Help: "Unix timestamp of when the application started",
		},
	)
)

func init() {
	AppInfo.Set(1)
	AppStartTime.SetToCurrentTime()
}

// RecordInference records one pipeline stage outcome
func RecordInference(stage string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	InferenceCalls.WithLabelValues(stage, status).Inc()
	InferenceDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordDBQuery records a database query execution
func RecordDBQuery(queryType, table string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DBQueriesTotal.WithLabelValues(queryType, table, status).Inc()
	DBQueryDuration.WithLabelValues(queryType, table).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics
func UpdateDBConnectionStats(open, inUse, idle int) {
	DBConnectionsOpen.Set(float64(open))
	DBConnectionsInUse.Set(float64(inUse))
	DBConnectionsIdle.Set(float64(idle))
}
