package database

import (
	"context"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"rabiescast/internal/metrics"
	"rabiescast/internal/models"
)

const defaultLimit = 100

// DB represents the database connection
type DB struct {
	conn   *sqlx.DB
	logger logrus.FieldLogger
}

// NewDB creates a new database connection and initializes the schema
// dsn format: "username:password@tcp(host:port)/dbname?parseTime=true"
// example: "user:pass@tcp(localhost:3306)/rabiescast?parseTime=true"
func NewDB(ctx context.Context, dsn string, logger logrus.FieldLogger) (*DB, error) {
	conn, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, logger: logger}

	if err := db.initSchema(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// initSchema creates the necessary tables
func (db *DB) initSchema(ctx context.Context) error {
	// MySQL doesn't support multiple statements in one Exec
	statements := []string{
		`CREATE TABLE IF NOT EXISTS monthly_weather (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			location VARCHAR(255) NOT NULL,
			municipality VARCHAR(64) NOT NULL,
			month DATE NOT NULL,
			tmean_c DOUBLE NOT NULL,
			rh_pct DOUBLE NOT NULL,
			precip_mm DOUBLE NOT NULL,
			wind_max_kmh DOUBLE NOT NULL,
			sunshine_hours DOUBLE NOT NULL,
			days INT NOT NULL,
			UNIQUE KEY uniq_weather_location_month (location, month),
			INDEX idx_weather_municipality (municipality)
		)`,
		`CREATE TABLE IF NOT EXISTS risk_assessments (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			municipality VARCHAR(64) NOT NULL,
			barangay VARCHAR(255) NOT NULL,
			level VARCHAR(16) NOT NULL,
			reason TEXT,
			forecast_avg DOUBLE NOT NULL,
			recent_avg DOUBLE NOT NULL,
			recent_max DOUBLE NOT NULL,
			assessed_at DATETIME(6) NOT NULL,
			INDEX idx_risk_municipality (municipality),
			INDEX idx_risk_assessed_at (assessed_at)
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			municipality VARCHAR(64) NOT NULL,
			barangay VARCHAR(255) NOT NULL,
			forecast_month VARCHAR(7) NOT NULL,
			predicted DOUBLE NOT NULL,
			risk_level VARCHAR(16) NOT NULL,
			threshold DOUBLE NOT NULL,
			seasonal_surge BOOLEAN NOT NULL,
			seasonal_alert VARCHAR(64) NOT NULL,
			historical_avg DOUBLE NOT NULL,
			model_mae DOUBLE NOT NULL,
			message TEXT,
			created_at DATETIME(6) NOT NULL,
			INDEX idx_alerts_municipality (municipality),
			INDEX idx_alerts_created_at (created_at)
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (db *DB) recordStats() {
	stats := db.conn.Stats()
	metrics.UpdateDBConnectionStats(stats.OpenConnections, stats.InUse, stats.Idle)
}

// StoreMonthlyWeather upserts monthly weather rows keyed by location and month
func (db *DB) StoreMonthlyWeather(ctx context.Context, rows []models.MonthlyWeather) (err error) {
	if len(rows) == 0 {
		return nil
	}
	start := time.Now()
	defer func() {
		metrics.RecordDBQuery("INSERT", "monthly_weather", time.Since(start), err)
		db.recordStats()
	}()

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO monthly_weather
		(location, municipality, month, tmean_c, rh_pct, precip_mm, wind_max_kmh, sunshine_hours, days)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			municipality = VALUES(municipality),
			tmean_c = VALUES(tmean_c),
			rh_pct = VALUES(rh_pct),
			precip_mm = VALUES(precip_mm),
			wind_max_kmh = VALUES(wind_max_kmh),
			sunshine_hours = VALUES(sunshine_hours),
			days = VALUES(days)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, w := range rows {
		_, err = stmt.ExecContext(ctx, w.Location, w.Municipality, w.Month, w.TempMeanC, w.RHPct,
			w.PrecipMM, w.WindMaxKmh, w.SunshineHours, w.Days)
		if err != nil {
			return fmt.Errorf("failed to store weather for %s at %s: %w", w.Location, w.Month.Format("2006-01"), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	db.logger.WithField("rows", len(rows)).Info("Stored monthly weather")
	return nil
}

// GetMonthlyWeather returns a location's monthly weather from since onward, oldest first
func (db *DB) GetMonthlyWeather(ctx context.Context, location string, since time.Time) ([]models.MonthlyWeather, error) {
	query := `SELECT id, location, municipality, month, tmean_c, rh_pct, precip_mm, wind_max_kmh, sunshine_hours, days
		FROM monthly_weather WHERE location = ? AND month >= ? ORDER BY month`

	var rows []models.MonthlyWeather
	start := time.Now()
	err := db.conn.SelectContext(ctx, &rows, query, location, since)
	metrics.RecordDBQuery("SELECT", "monthly_weather", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query weather for %s: %w", location, err)
	}
	return labelMonths(rows), nil
}

// MonthlyWeatherAverages averages every location of a municipality per month, oldest first
func (db *DB) MonthlyWeatherAverages(ctx context.Context, municipality string) ([]models.MonthlyWeather, error) {
	query := `SELECT municipality, month,
			AVG(tmean_c) AS tmean_c,
			AVG(rh_pct) AS rh_pct,
			AVG(precip_mm) AS precip_mm,
			AVG(wind_max_kmh) AS wind_max_kmh,
			AVG(sunshine_hours) AS sunshine_hours,
			CAST(MAX(days) AS SIGNED) AS days
		FROM monthly_weather WHERE municipality = ?
		GROUP BY municipality, month ORDER BY month`

	var rows []models.MonthlyWeather
	start := time.Now()
	err := db.conn.SelectContext(ctx, &rows, query, municipality)
	metrics.RecordDBQuery("SELECT", "monthly_weather", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to average weather for %s: %w", municipality, err)
	}
	return labelMonths(rows), nil
}

func labelMonths(rows []models.MonthlyWeather) []models.MonthlyWeather {
	for i := range rows {
		rows[i].MonthLabel = rows[i].Month.Format("2006-01")
	}
	return rows
}

// StoreAlerts inserts a batch of threshold alerts in one transaction
func (db *DB) StoreAlerts(ctx context.Context, alerts []models.Alert) (err error) {
	if len(alerts) == 0 {
		db.logger.Debug("No alerts")
		return nil
	}
	start := time.Now()
	defer func() {
		metrics.RecordDBQuery("INSERT", "alerts", time.Since(start), err)
		db.recordStats()
	}()

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, `INSERT INTO alerts
		(municipality, barangay, forecast_month, predicted, risk_level, threshold,
		 seasonal_surge, seasonal_alert, historical_avg, model_mae, message, created_at)
		VALUES (:municipality, :barangay, :forecast_month, :predicted, :risk_level, :threshold,
		 :seasonal_surge, :seasonal_alert, :historical_avg, :model_mae, :message, :created_at)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, a := range alerts {
		if _, err = stmt.ExecContext(ctx, a); err != nil {
			return fmt.Errorf("failed to insert alert for %s/%s: %w", a.Municipality, a.Barangay, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	db.logger.WithField("alerts", len(alerts)).Info("Stored alerts")
	return nil
}

// GetAlerts returns the newest alerts, optionally restricted to one municipality
func (db *DB) GetAlerts(ctx context.Context, municipality string, limit int) ([]models.Alert, error) {
	query := `SELECT id, municipality, barangay, forecast_month, predicted, risk_level, threshold,
			seasonal_surge, seasonal_alert, historical_avg, model_mae, message, created_at
		FROM alerts WHERE (? = '' OR municipality = ?) ORDER BY created_at DESC LIMIT ?`

	var alerts []models.Alert
	start := time.Now()
	err := db.conn.SelectContext(ctx, &alerts, query, municipality, municipality, limitOrDefault(limit))
	metrics.RecordDBQuery("SELECT", "alerts", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	return alerts, nil
}

// StoreRiskSnapshots inserts a batch of relative risk classifications
func (db *DB) StoreRiskSnapshots(ctx context.Context, snapshots []models.RiskSnapshot) (err error) {
	if len(snapshots) == 0 {
		return nil
	}
	start := time.Now()
	defer func() {
		metrics.RecordDBQuery("INSERT", "risk_assessments", time.Since(start), err)
		db.recordStats()
	}()

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, `INSERT INTO risk_assessments
		(municipality, barangay, level, reason, forecast_avg, recent_avg, recent_max, assessed_at)
		VALUES (:municipality, :barangay, :level, :reason, :forecast_avg, :recent_avg, :recent_max, :assessed_at)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range snapshots {
		if _, err = stmt.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("failed to insert risk snapshot for %s/%s: %w", s.Municipality, s.Barangay, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	db.logger.WithField("snapshots", len(snapshots)).Info("Stored risk snapshots")
	return nil
}

// GetRiskSnapshots returns a barangay's stored classifications, newest first
func (db *DB) GetRiskSnapshots(ctx context.Context, municipality, barangay string, limit int) ([]models.RiskSnapshot, error) {
	query := `SELECT id, municipality, barangay, level, COALESCE(reason, '') AS reason,
			forecast_avg, recent_avg, recent_max, assessed_at
		FROM risk_assessments WHERE municipality = ? AND barangay = ?
		ORDER BY assessed_at DESC LIMIT ?`

	var snapshots []models.RiskSnapshot
	start := time.Now()
	err := db.conn.SelectContext(ctx, &snapshots, query, municipality, barangay, limitOrDefault(limit))
	metrics.RecordDBQuery("SELECT", "risk_assessments", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk snapshots: %w", err)
	}
	return snapshots, nil
}

func limitOrDefault(limit int) int {
	if limit < 1 {
		return defaultLimit
	}
	return limit
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
