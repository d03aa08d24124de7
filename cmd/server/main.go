package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"rabiescast/internal/config"
	"rabiescast/internal/database"
	"rabiescast/internal/explain"
	"rabiescast/internal/forecast"
	"rabiescast/internal/fpm"
	"rabiescast/internal/logging"
	"rabiescast/internal/registry"
	"rabiescast/internal/risk"
	"rabiescast/internal/server"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config file")
	withDB := flag.Bool("db", true, "read alerts and weather history from MySQL")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		logrus.Fatalf("Failed to initialize logging: %v", err)
	}

	reg, err := registry.Load(cfg.Models.Dir, logger)
	if err != nil {
		logger.Fatalf("Failed to load models: %v", err)
	}
	logger.WithField("models", reg.Len()).Info("Models loaded")

	var fpmModel *fpm.Model
	if cfg.Models.FPMPath != "" {
		fpmModel, err = fpm.Load(cfg.Models.FPMPath)
		if err != nil {
			logger.WithError(err).Warn("FPM model not loaded, weather insights disabled")
			fpmModel = nil
		}
	}

	predictor, err := forecast.NewPredictor(logger, cfg.Cache.Size)
	if err != nil {
		logger.Fatalf("Failed to create predictor: %v", err)
	}
	policy, err := cfg.ThresholdPolicy()
	if err != nil {
		logger.Fatalf("Invalid alert thresholds: %v", err)
	}

	opts := server.Options{
		DefaultHorizon: cfg.Forecast.DefaultHorizon,
		MaxHorizon:     cfg.Forecast.MaxHorizon,
	}
	if *withDB {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		db, err := database.NewDB(ctx, config.GetDatabaseDSN(), logger)
		cancel()
		if err != nil {
			logger.WithError(err).Warn("Database unavailable, alerts are scanned live")
		} else {
			defer db.Close()
			opts.Alerts = db
			opts.Weather = db
			opts.Risk = db
		}
	}

	svc := server.Services{
		Registry:   reg,
		Predictor:  predictor,
		Extractor:  explain.NewExtractor(logger),
		Classifier: risk.NewClassifier(predictor, cfg.Forecast.RiskHorizon, logger),
		Scanner:    risk.NewScanner(policy, predictor, cfg.Alerts.Workers, logger),
		Policy:     policy,
		Engine:     fpm.NewEngine(fpmModel, logger),
	}

	httpServer := server.NewServer(svc, opts, logger)
	logger.WithField("addr", cfg.Server.Addr).Info("Starting server")
	if err := httpServer.Start(cfg.Server.Addr); err != nil {
		logger.Errorf("Server stopped: %v", err)
		os.Exit(1)
	}
}
