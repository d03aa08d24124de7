package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"rabiescast/internal/config"
	"rabiescast/internal/database"
	"rabiescast/internal/logging"
	"rabiescast/internal/models"
)

// Columns every weather file must carry. location, municipality and days are
// optional.
var requiredColumns = []string{"month", "tmean_c", "rh_pct", "precip_mm", "wind_speed_10m_max_kmh", "sunshine_hours"}

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config file")
	csvPath := flag.String("file", "monthly_weather.csv", "monthly weather CSV")
	location := flag.String("location", "", "location for rows without a location column")
	municipality := flag.String("municipality", "", "municipality for rows without a municipality column")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		logrus.Fatalf("Failed to initialize logging: %v", err)
	}

	file, err := os.Open(*csvPath)
	if err != nil {
		logger.Fatalf("Failed to open CSV file: %v", err)
	}
	defer file.Close()

	rows, skipped, err := parseWeather(file, *location, strings.ToUpper(*municipality), logger)
	if err != nil {
		logger.Fatalf("Failed to read CSV: %v", err)
	}

	ctx := context.Background()
	db, err := database.NewDB(ctx, config.GetDatabaseDSN(), logger)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := db.StoreMonthlyWeather(ctx, rows); err != nil {
		logger.Fatalf("Failed to store monthly weather: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"file":     *csvPath,
		"inserted": len(rows),
		"skipped":  skipped,
	}).Info("Import complete")
}

// parseWeather reads a header row followed by one row per month. Invalid rows
// are skipped and counted.
func parseWeather(r io.Reader, location, municipality string, logger logrus.FieldLogger) ([]models.MonthlyWeather, int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read CSV header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return nil, 0, fmt.Errorf("missing column %q", name)
		}
	}
	if _, ok := col["location"]; !ok && location == "" {
		return nil, 0, errors.New("no location column and no default location")
	}

	var rows []models.MonthlyWeather
	skipped := 0
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) && parseErr.Err == csv.ErrFieldCount {
				logger.WithField("line", line).Warn("Skipping record with wrong field count")
				skipped++
				continue
			}
			return nil, skipped, fmt.Errorf("failed to read CSV record: %w", err)
		}

		row, err := parseRow(record, col, location, municipality)
		if err != nil {
			logger.WithError(err).WithField("line", line).Warn("Skipping invalid record")
			skipped++
			continue
		}
		rows = append(rows, row)
	}
	return rows, skipped, nil
}

func parseRow(record []string, col map[string]int, location, municipality string) (models.MonthlyWeather, error) {
	get := func(name string) (string, bool) {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return "", false
		}
		return strings.TrimSpace(record[i]), true
	}
	num := func(name string) (float64, error) {
		v, _ := get(name)
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q", name, v)
		}
		return f, nil
	}

	row := models.MonthlyWeather{Location: location, Municipality: municipality}
	if v, ok := get("location"); ok && v != "" {
		row.Location = v
	}
	if v, ok := get("municipality"); ok && v != "" {
		row.Municipality = strings.ToUpper(v)
	}
	if row.Location == "" {
		return row, errors.New("empty location")
	}

	monthText, _ := get("month")
	month, err := parseMonth(monthText)
	if err != nil {
		return row, err
	}
	row.Month = month
	row.MonthLabel = month.Format("2006-01")

	if row.TempMeanC, err = num("tmean_c"); err != nil {
		return row, err
	}
	if row.RHPct, err = num("rh_pct"); err != nil {
		return row, err
	}
	if row.PrecipMM, err = num("precip_mm"); err != nil {
		return row, err
	}
	if row.WindMaxKmh, err = num("wind_speed_10m_max_kmh"); err != nil {
		return row, err
	}
	if row.SunshineHours, err = num("sunshine_hours"); err != nil {
		return row, err
	}

	if v, ok := get("days"); ok && v != "" {
		if row.Days, err = strconv.Atoi(v); err != nil {
			return row, fmt.Errorf("invalid days %q", v)
		}
	} else {
		row.Days = daysIn(month)
	}
	return row, nil
}

// parseMonth accepts YYYY-MM or a full date and returns the first of the month.
func parseMonth(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid month %q", s)
}

func daysIn(month time.Time) int {
	return month.AddDate(0, 1, -1).Day()
}
