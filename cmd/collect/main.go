package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"rabiescast/internal/api"
	"rabiescast/internal/config"
	"rabiescast/internal/database"
	"rabiescast/internal/logging"
	"rabiescast/internal/models"
)

const (
	// archiveLagDays is how far behind today the archive is complete
	archiveLagDays = 7
	dateLayout     = "2006-01-02"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		logrus.Fatalf("Failed to initialize logging: %v", err)
	}

	start, end, err := dateRange(cfg.Weather.StartDate, cfg.Weather.EndDate, time.Now())
	if err != nil {
		logger.Fatalf("Invalid weather date range: %v", err)
	}
	if len(cfg.Weather.Locations) == 0 {
		logger.Fatal("No weather locations configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(ctx, config.GetDatabaseDSN(), logger)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	client := api.NewOpenMeteoClient()

	var wg sync.WaitGroup
	for _, location := range cfg.Weather.Locations {
		wg.Add(1)
		go func(loc config.Location) {
			defer wg.Done()

			log := logger.WithField("location", loc.Name)
			rows, err := collect(ctx, client, loc, start, end)
			if err != nil {
				log.WithError(err).Error("Failed to collect weather")
				return
			}
			if err := db.StoreMonthlyWeather(ctx, rows); err != nil {
				log.WithError(err).Error("Failed to store weather")
				return
			}
			log.WithField("months", len(rows)).Info("Weather collected")
		}(location)
	}

	wg.Wait()
	logger.Info("Data collection completed. Exiting")
}

// collect fetches a location's daily archive and folds it into months
func collect(ctx context.Context, client *api.OpenMeteoClient, loc config.Location, start, end string) ([]models.MonthlyWeather, error) {
	archive, err := client.GetArchive(ctx, api.ArchiveParams{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		return nil, err
	}
	return api.AggregateMonthly(archive, loc.Name, loc.Municipality)
}

// dateRange resolves the configured window. An empty end date means the
// latest day the archive is complete for.
func dateRange(start, end string, now time.Time) (string, string, error) {
	if start == "" {
		return "", "", fmt.Errorf("weather.start_date is required")
	}
	from, err := time.Parse(dateLayout, start)
	if err != nil {
		return "", "", fmt.Errorf("invalid start date %q: %w", start, err)
	}

	to := now.AddDate(0, 0, -archiveLagDays)
	if end != "" {
		if to, err = time.Parse(dateLayout, end); err != nil {
			return "", "", fmt.Errorf("invalid end date %q: %w", end, err)
		}
	}
	if to.Before(from) {
		return "", "", fmt.Errorf("end date %s is before start date %s", to.Format(dateLayout), start)
	}
	return start, to.Format(dateLayout), nil
}
