package models

import "time"

// Archive represents daily weather history from the Open-Meteo archive API
type Archive struct {
	Latitude         float64    `json:"latitude"`
	Longitude        float64    `json:"longitude"`
	Timezone         string     `json:"timezone"`
	DailyUnits       DailyUnits `json:"daily_units"`
	Daily            Daily      `json:"daily"`
	GenerationTimeMs float64    `json:"generation_time_ms"`
}

type DailyUnits struct {
	Time                   string `json:"time"`
	Temperature2mMean      string `json:"temperature_2m_mean"`
	RelativeHumidity2mMean string `json:"relative_humidity_2m_mean"`
	PrecipitationSum       string `json:"precipitation_sum"`
	WindSpeed10mMax        string `json:"wind_speed_10m_max"`
	SunshineDuration       string `json:"sunshine_duration"`
}

// Daily holds parallel per-day series. Pointers mark values the archive
// reports as null.
type Daily struct {
	Time                   []string   `json:"time"`
	Temperature2mMean      []*float64 `json:"temperature_2m_mean"`
	RelativeHumidity2mMean []*float64 `json:"relative_humidity_2m_mean"`
	PrecipitationSum       []*float64 `json:"precipitation_sum"`
	WindSpeed10mMax        []*float64 `json:"wind_speed_10m_max"`
	SunshineDuration       []*float64 `json:"sunshine_duration"` // seconds
}

// MonthlyWeather is one month of aggregated weather for a location
type MonthlyWeather struct {
	ID            int64     `json:"id,omitempty" db:"id"`
	Location      string    `json:"location" db:"location"`
	Municipality  string    `json:"municipality" db:"municipality"`
	Month         time.Time `json:"-" db:"month"`
	MonthLabel    string    `json:"month" db:"-"`
	TempMeanC     float64   `json:"tmean_c" db:"tmean_c"`
	RHPct         float64   `json:"rh_pct" db:"rh_pct"`
	PrecipMM      float64   `json:"precip_mm" db:"precip_mm"`
	WindMaxKmh    float64   `json:"wind_speed_10m_max_kmh" db:"wind_max_kmh"`
	SunshineHours float64   `json:"sunshine_hours" db:"sunshine_hours"`
	Days          int       `json:"days" db:"days"`
}

// ForecastPoint is one forecast month at the reporting boundary
type ForecastPoint struct {
	Date      string  `json:"date"`
	Predicted float64 `json:"predicted"`
}

// SeriesPoint is one observed month with its in-sample prediction
type SeriesPoint struct {
	Date      string  `json:"date"`
	Actual    float64 `json:"actual"`
	Predicted float64 `json:"predicted"`
}

// MetricSnapshot is the accuracy snapshot rounded for output
type MetricSnapshot struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	MAPE float64 `json:"mape"`
	R2   float64 `json:"r2"`
	MASE float64 `json:"mase"`
}

// RiskSnapshot is a stored relative risk classification
type RiskSnapshot struct {
	ID           int64     `json:"id,omitempty" db:"id"`
	Municipality string    `json:"municipality" db:"municipality"`
	Barangay     string    `json:"barangay" db:"barangay"`
	Level        string    `json:"level" db:"level"`
	Reason       string    `json:"reason,omitempty" db:"reason"`
	ForecastAvg  float64   `json:"forecast_avg" db:"forecast_avg"`
	RecentAvg    float64   `json:"recent_avg" db:"recent_avg"`
	RecentMax    float64   `json:"recent_max" db:"recent_max"`
	AssessedAt   time.Time `json:"assessed_at" db:"assessed_at"`
}

// Alert represents a threshold alert for a barangay's next-month forecast
type Alert struct {
	ID            int64     `json:"id,omitempty" db:"id"`
	Municipality  string    `json:"municipality" db:"municipality"`
	Barangay      string    `json:"barangay" db:"barangay"`
	ForecastMonth string    `json:"forecast_month" db:"forecast_month"`
	Predicted     float64   `json:"predicted" db:"predicted"`
	RiskLevel     string    `json:"risk_level" db:"risk_level"` // "HIGH", "MEDIUM", "LOW" or "NORMAL"
	Threshold     float64   `json:"threshold" db:"threshold"`
	SeasonalSurge bool      `json:"seasonal_surge" db:"seasonal_surge"`
	SeasonalAlert string    `json:"seasonal_alert" db:"seasonal_alert"`
	HistoricalAvg float64   `json:"historical_avg" db:"historical_avg"`
	ModelMAE      float64   `json:"model_mae" db:"model_mae"`
	Message       string    `json:"message" db:"message"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
