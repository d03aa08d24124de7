package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"rabiescast/internal/bundle"
	"rabiescast/internal/config"
	"rabiescast/internal/explain"
	"rabiescast/internal/forecast"
	"rabiescast/internal/fpm"
	"rabiescast/internal/logging"
	"rabiescast/internal/registry"
	"rabiescast/internal/risk"
	"rabiescast/internal/stream"
)

var (
	// Global flags
	configFile string
	verbose    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect barangay forecast models from the command line",
		Long: `Runs the forecasting core against the configured model directory without
starting the HTTP server. Every subcommand prints JSON.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config.yaml", "Config file (YAML)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose logging")

	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(forecastCmd())
	rootCmd.AddCommand(riskCmd())
	rootCmd.AddCommand(explainCmd())
	rootCmd.AddCommand(insightsCmd())
	rootCmd.AddCommand(alertsCmd())

	return rootCmd
}

// env is what every subcommand needs after loading config and models
type env struct {
	cfg       *config.Config
	logger    *logrus.Logger
	registry  *registry.Registry
	predictor *forecast.Predictor
}

func setup(withModels bool) (*env, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	logCfg := cfg.Log
	logCfg.Output = "stderr"
	if verbose {
		logCfg.Level = "debug"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, logger: logger}
	if !withModels {
		return e, nil
	}
	if e.registry, err = registry.Load(cfg.Models.Dir, logger); err != nil {
		return nil, err
	}
	if e.predictor, err = forecast.NewPredictor(logger, cfg.Cache.Size); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *env) lookup(args []string) (*bundle.Bundle, error) {
	return e.registry.LookupFold(args[0], args[1])
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// listCmd prints every municipality and its barangays
func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List loaded models by municipality",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(true)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), e.registry.Municipalities())
		},
	}
}

// forecastCmd prints a multi-month forecast
func forecastCmd() *cobra.Command {
	var months int

	cmd := &cobra.Command{
		Use:   "forecast MUNICIPALITY BARANGAY",
		Short: "Forecast monthly cases for one barangay",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(true)
			if err != nil {
				return err
			}
			if months == 0 {
				months = e.cfg.Forecast.DefaultHorizon
			}
			if months < 1 || months > e.cfg.Forecast.MaxHorizon {
				return fmt.Errorf("months must be between 1 and %d", e.cfg.Forecast.MaxHorizon)
			}

			b, err := e.lookup(args)
			if err != nil {
				return err
			}
			points, err := e.predictor.Forecast(b, months)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), forecast.ToRecords(points))
		},
	}

	cmd.Flags().IntVarP(&months, "months", "m", 0, "Months to forecast (default from config)")
	return cmd
}

// riskCmd prints both risk policies for one barangay
func riskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "risk MUNICIPALITY BARANGAY",
		Short: "Classify outbreak risk for one barangay",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(true)
			if err != nil {
				return err
			}
			b, err := e.lookup(args)
			if err != nil {
				return err
			}
			policy, err := e.cfg.ThresholdPolicy()
			if err != nil {
				return err
			}

			classifier := risk.NewClassifier(e.predictor, e.cfg.Forecast.RiskHorizon, e.logger)
			alert, err := risk.NewScanner(policy, e.predictor, 1, e.logger).Evaluate(b)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"relative":  classifier.Assess(b),
				"threshold": alert,
			})
		},
	}
}

// explainCmd prints the component explanation
func explainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain MUNICIPALITY BARANGAY",
		Short: "Decompose a barangay model into its components",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(true)
			if err != nil {
				return err
			}
			b, err := e.lookup(args)
			if err != nil {
				return err
			}
			exp := explain.NewExtractor(e.logger).Extract(b)
			if !exp.Success {
				return fmt.Errorf("extraction failed: %s", exp.Error)
			}
			return printJSON(cmd.OutOrStdout(), exp)
		},
	}
}

// insightsCmd assesses one month of weather against the pattern model
func insightsCmd() *cobra.Command {
	w := fpm.DefaultWeather()

	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Assess weather conditions against the pattern model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(false)
			if err != nil {
				return err
			}
			model, err := fpm.Load(e.cfg.Models.FPMPath)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), fpm.NewEngine(model, e.logger).Assess(w))
		},
	}

	cmd.Flags().Float64Var(&w.TempMeanC, "temperature", w.TempMeanC, "Mean temperature (°C)")
	cmd.Flags().Float64Var(&w.RHPct, "humidity", w.RHPct, "Mean relative humidity (%)")
	cmd.Flags().Float64Var(&w.PrecipMM, "precipitation", w.PrecipMM, "Monthly precipitation (mm)")
	cmd.Flags().Float64Var(&w.WindMaxKmh, "wind", w.WindMaxKmh, "Maximum wind speed (km/h)")
	cmd.Flags().Float64Var(&w.SunshineHours, "sunshine", w.SunshineHours, "Monthly sunshine (hours)")
	return cmd
}

// alertsCmd prints the newest alerts from the Redis stream
func alertsCmd() *cobra.Command {
	var count int64

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Show recently published alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(false)
			if err != nil {
				return err
			}

			redisCfg := config.GetRedisConfig()
			client := redis.NewClient(&redis.Options{
				Addr:     redisCfg.Addr,
				Password: redisCfg.Password,
				DB:       redisCfg.DB,
			})
			defer client.Close()

			alerts, err := stream.NewPublisher(client, redisCfg.Stream, redisCfg.MaxLen, e.logger).Recent(context.Background(), count)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), alerts)
		},
	}

	cmd.Flags().Int64VarP(&count, "count", "n", 20, "Number of alerts")
	return cmd
}
