package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"rabiescast/internal/logging"
	"rabiescast/internal/risk"
)

// Location is a point the weather collector fetches history for.
type Location struct {
	Name         string  `yaml:"name"`
	Municipality string  `yaml:"municipality"`
	Latitude     float64 `yaml:"latitude"`
	Longitude    float64 `yaml:"longitude"`
}

var (
	instance *Config
	once     sync.Once
)

// Config is the process configuration shared by every command
type Config struct {
	Models struct {
		Dir     string `yaml:"dir"`
		FPMPath string `yaml:"fpm_path"`
	} `yaml:"models"`
	Forecast struct {
		DefaultHorizon int `yaml:"default_horizon"`
		RiskHorizon    int `yaml:"risk_horizon"`
		MaxHorizon     int `yaml:"max_horizon"`
	} `yaml:"forecast"`
	Alerts struct {
		Thresholds          map[string]risk.Thresholds `yaml:"thresholds"`
		DefaultMunicipality string                     `yaml:"default_municipality"`
		DrySeasonMonths     []int                      `yaml:"dry_season_months"`
		Workers             int                        `yaml:"workers"`
	} `yaml:"alerts"`
	Weather struct {
		StartDate string     `yaml:"start_date"`
		EndDate   string     `yaml:"end_date"`
		Locations []Location `yaml:"locations"`
	} `yaml:"weather"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Cache struct {
		Size int `yaml:"size"`
	} `yaml:"cache"`
	Log logging.Config `yaml:"log"`
}

func Load(configPath string) (*Config, error) {
	var err error
	once.Do(func() {
		instance = &Config{}

		data, readErr := os.ReadFile(configPath)
		if readErr != nil {
			err = fmt.Errorf("failed to read config file %s: %w", configPath, readErr)
			return
		}

		if parseErr := yaml.Unmarshal(data, instance); parseErr != nil {
			err = fmt.Errorf("failed to parse config: %w", parseErr)
			return
		}

		instance.applyDefaults()
		if validateErr := instance.validate(); validateErr != nil {
			err = validateErr
			return
		}
	})

	return instance, err
}

func Get() *Config {
	if instance == nil {
		panic("config not loaded - call config.Load() first")
	}
	return instance
}

func (c *Config) applyDefaults() {
	if c.Forecast.DefaultHorizon == 0 {
		c.Forecast.DefaultHorizon = 8
	}
	if c.Forecast.RiskHorizon == 0 {
		c.Forecast.RiskHorizon = risk.DefaultHorizon
	}
	if c.Forecast.MaxHorizon == 0 {
		c.Forecast.MaxHorizon = 36
	}
	if len(c.Alerts.Thresholds) == 0 {
		c.Alerts.Thresholds = risk.DefaultThresholds
	}
	if c.Alerts.DefaultMunicipality == "" {
		c.Alerts.DefaultMunicipality = risk.DefaultMunicipality
	}
	if c.Alerts.DrySeasonMonths == nil {
		for _, m := range risk.DefaultDrySeason {
			c.Alerts.DrySeasonMonths = append(c.Alerts.DrySeasonMonths, int(m))
		}
	}
	if c.Alerts.Workers == 0 {
		c.Alerts.Workers = 8
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Cache.Size == 0 {
		c.Cache.Size = 512
	}
}

func (c *Config) validate() error {
	if c.Models.Dir == "" {
		return fmt.Errorf("models.dir cannot be empty")
	}
	if c.Forecast.DefaultHorizon < 1 || c.Forecast.RiskHorizon < 1 {
		return fmt.Errorf("forecast horizons must be positive")
	}
	if c.Forecast.DefaultHorizon > c.Forecast.MaxHorizon {
		return fmt.Errorf("forecast.default_horizon %d exceeds max_horizon %d", c.Forecast.DefaultHorizon, c.Forecast.MaxHorizon)
	}
	if _, err := risk.NewThresholdPolicy(c.Alerts.Thresholds, c.Alerts.DefaultMunicipality, c.DrySeason()); err != nil {
		return fmt.Errorf("alerts: %w", err)
	}
	if c.Alerts.Workers < 1 {
		return fmt.Errorf("alerts.workers must be positive")
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("cache.size cannot be negative")
	}
	for i, loc := range c.Weather.Locations {
		if loc.Name == "" {
			return fmt.Errorf("weather.locations[%d]: name cannot be empty", i)
		}
		if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
			return fmt.Errorf("weather.locations[%d]: coordinates out of range", i)
		}
	}
	return nil
}

// DrySeason returns the configured dry-season months.
func (c *Config) DrySeason() []time.Month {
	months := make([]time.Month, len(c.Alerts.DrySeasonMonths))
	for i, m := range c.Alerts.DrySeasonMonths {
		months[i] = time.Month(m)
	}
	return months
}

// ThresholdPolicy builds the alert policy from the validated config.
func (c *Config) ThresholdPolicy() (*risk.ThresholdPolicy, error) {
	return risk.NewThresholdPolicy(c.Alerts.Thresholds, c.Alerts.DefaultMunicipality, c.DrySeason())
}
