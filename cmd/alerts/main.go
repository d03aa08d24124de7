package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"rabiescast/internal/bundle"
	"rabiescast/internal/config"
	"rabiescast/internal/database"
	"rabiescast/internal/forecast"
	"rabiescast/internal/logging"
	"rabiescast/internal/models"
	"rabiescast/internal/registry"
	"rabiescast/internal/risk"
	"rabiescast/internal/stream"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config file")
	municipality := flag.String("municipality", "", "only scan this municipality")
	dryRun := flag.Bool("dry-run", false, "log results without storing snapshots or publishing alerts")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		logrus.Fatalf("Failed to initialize logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := registry.Load(cfg.Models.Dir, logger)
	if err != nil {
		logger.Fatalf("Failed to load models: %v", err)
	}
	predictor, err := forecast.NewPredictor(logger, cfg.Cache.Size)
	if err != nil {
		logger.Fatalf("Failed to create predictor: %v", err)
	}
	policy, err := cfg.ThresholdPolicy()
	if err != nil {
		logger.Fatalf("Invalid alert thresholds: %v", err)
	}

	bundles := risk.FilterMunicipality(reg.All(), *municipality)
	logger.WithFields(logrus.Fields{
		"barangays": len(bundles),
		"workers":   cfg.Alerts.Workers,
	}).Info("Running alert scan")

	// Run once; scheduling is external
	scanner := risk.NewScanner(policy, predictor, cfg.Alerts.Workers, logger)
	alerts, summary := scanner.Scan(ctx, bundles)
	snapshots, counts := assessAll(risk.NewClassifier(predictor, cfg.Forecast.RiskHorizon, logger), bundles, time.Now())

	logger.WithFields(logrus.Fields{
		"scanned":  summary.Scanned,
		"failed":   summary.Failed,
		"alerts":   summary.Alerts,
		"duration": summary.Duration.Round(time.Millisecond),
		"high":     counts.High,
		"medium":   counts.Medium,
		"low":      counts.Low,
	}).Info("Alert scan complete")
	for _, a := range alerts {
		logger.WithFields(logrus.Fields{
			"municipality": a.Municipality,
			"barangay":     a.Barangay,
			"level":        a.RiskLevel,
			"predicted":    a.Predicted,
			"surge":        a.SeasonalAlert,
		}).Info(a.Message)
	}

	if *dryRun {
		return
	}

	db, err := database.NewDB(ctx, config.GetDatabaseDSN(), logger)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := db.StoreRiskSnapshots(ctx, snapshots); err != nil {
		logger.WithError(err).Error("Failed to store risk snapshots")
	}

	// Alerts reach the database through the stream and cmd/store
	redisCfg := config.GetRedisConfig()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	defer redisClient.Close()

	publisher := stream.NewPublisher(redisClient, redisCfg.Stream, redisCfg.MaxLen, logger)
	if _, err := publisher.Publish(ctx, alerts); err != nil {
		logger.WithError(err).Error("Failed to publish alerts")
	}
}

// assessAll classifies every bundle with the relative policy.
func assessAll(c *risk.Classifier, bundles []*bundle.Bundle, at time.Time) ([]models.RiskSnapshot, risk.Counts) {
	var counts risk.Counts
	snapshots := make([]models.RiskSnapshot, 0, len(bundles))
	for _, b := range bundles {
		a := c.Assess(b)
		counts.Add(a.Level)
		snapshots = append(snapshots, a.Snapshot(b, at))
	}
	return snapshots, counts
}
