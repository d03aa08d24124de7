package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"rabiescast/internal/metrics"
	"rabiescast/internal/models"
)

const archiveURL = "https://archive-api.open-meteo.com/v1/archive"

// DailyFields are the archive series monthly aggregation needs.
var DailyFields = []string{
	"temperature_2m_mean",
	"relative_humidity_2m_mean",
	"precipitation_sum",
	"wind_speed_10m_max",
	"sunshine_duration",
}

// OpenMeteoClient is a client for the Open-Meteo archive API
type OpenMeteoClient struct {
	client  *http.Client
	baseURL string
}

type ArchiveParams struct {
	Latitude    float64
	Longitude   float64
	StartDate   string // YYYY-MM-DD
	EndDate     string // YYYY-MM-DD
	DailyFields []string
	Timezone    string
}

// NewOpenMeteoClient creates a new Open-Meteo archive client
func NewOpenMeteoClient() *OpenMeteoClient {
	return &OpenMeteoClient{
		client:  &http.Client{Timeout: 60 * time.Second},
		baseURL: archiveURL,
	}
}

// WithBaseURL points the client at another archive endpoint.
func (c *OpenMeteoClient) WithBaseURL(u string) *OpenMeteoClient {
	c.baseURL = u
	return c
}

// GetArchive fetches daily weather history for the given coordinates and date range
func (c *OpenMeteoClient) GetArchive(ctx context.Context, params ArchiveParams) (archive *models.Archive, err error) {
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.WeatherFetches.WithLabelValues(status).Inc()
	}()

	if params.StartDate == "" || params.EndDate == "" {
		return nil, fmt.Errorf("GetArchive: start and end dates are required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BuildURL(params), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	archive = &models.Archive{}
	if err := json.NewDecoder(resp.Body).Decode(archive); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return archive, nil
}

// Builds URL for an archive request
func (c *OpenMeteoClient) BuildURL(params ArchiveParams) string {
	if params.Timezone == "" {
		params.Timezone = "auto"
	}
	if len(params.DailyFields) == 0 {
		params.DailyFields = DailyFields
	}

	return fmt.Sprintf("%s?latitude=%.4f&longitude=%.4f&start_date=%s&end_date=%s&daily=%s&timezone=%s",
		c.baseURL, params.Latitude, params.Longitude, params.StartDate, params.EndDate,
		strings.Join(params.DailyFields, ","), params.Timezone)
}

type monthBucket struct {
	days                        int
	temp, rh, precip, wind, sun []float64
}

// AggregateMonthly folds daily archive rows into calendar months: mean
// temperature and humidity, summed precipitation, maximum wind and summed
// sunshine converted from seconds to hours. Null values are skipped; a month
// missing every value of any field is dropped.
func AggregateMonthly(archive *models.Archive, location, municipality string) ([]models.MonthlyWeather, error) {
	d := archive.Daily
	n := len(d.Time)
	for name, col := range map[string][]*float64{
		"temperature_2m_mean":       d.Temperature2mMean,
		"relative_humidity_2m_mean": d.RelativeHumidity2mMean,
		"precipitation_sum":         d.PrecipitationSum,
		"wind_speed_10m_max":        d.WindSpeed10mMax,
		"sunshine_duration":         d.SunshineDuration,
	} {
		if len(col) != n {
			return nil, fmt.Errorf("%s has %d values but %d days", name, len(col), n)
		}
	}

	buckets := make(map[time.Time]*monthBucket)
	for i, day := range d.Time {
		t, err := time.Parse("2006-01-02", day)
		if err != nil {
			return nil, fmt.Errorf("failed to parse day %s: %w", day, err)
		}
		month := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		b, ok := buckets[month]
		if !ok {
			b = &monthBucket{}
			buckets[month] = b
		}
		b.days++
		b.temp = appendValue(b.temp, d.Temperature2mMean[i])
		b.rh = appendValue(b.rh, d.RelativeHumidity2mMean[i])
		b.precip = appendValue(b.precip, d.PrecipitationSum[i])
		b.wind = appendValue(b.wind, d.WindSpeed10mMax[i])
		b.sun = appendValue(b.sun, d.SunshineDuration[i])
	}

	months := make([]time.Time, 0, len(buckets))
	for m := range buckets {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })

	out := make([]models.MonthlyWeather, 0, len(months))
	for _, m := range months {
		b := buckets[m]
		if len(b.temp) == 0 || len(b.rh) == 0 || len(b.precip) == 0 || len(b.wind) == 0 || len(b.sun) == 0 {
			continue
		}
		out = append(out, models.MonthlyWeather{
			Location:      location,
			Municipality:  municipality,
			Month:         m,
			MonthLabel:    m.Format("2006-01"),
			TempMeanC:     stat.Mean(b.temp, nil),
			RHPct:         stat.Mean(b.rh, nil),
			PrecipMM:      floats.Sum(b.precip),
			WindMaxKmh:    floats.Max(b.wind),
			SunshineHours: floats.Sum(b.sun) / 3600,
			Days:          b.days,
		})
	}
	return out, nil
}

func appendValue(xs []float64, v *float64) []float64 {
	if v == nil {
		return xs
	}
	return append(xs, *v)
}
