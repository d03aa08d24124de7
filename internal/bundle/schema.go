package bundle

import (
	"fmt"
	"strings"

	"rabiescast/internal/inference"
)

// Accepted aliases, in priority order, for each logical output column of a
// baseline model.
var (
	ForecastAliases    = []string{inference.ColumnForecast, "yhat"}
	SeasonalityAliases = []string{inference.ColumnSeasonYearly, "seasonal_yearly", "yearly", "seasonality"}
	MetricPrefixes     = []string{"hybrid_", "val_", ""}
)

// Schema maps logical decomposition fields to the concrete column names a
// baseline model emits. Empty names mean the model has no such component.
type Schema struct {
	Forecast    string
	Trend       string
	Seasonality string
	Holiday     string
	// Events lists the per-event indicator columns in output order.
	Events []string
	// Contributions maps a regressor column to its contribution column.
	Contributions map[string]string
}

// HasHolidays reports whether the baseline was configured with events.
func (s Schema) HasHolidays() bool {
	return s.Holiday != ""
}

// ResolveSchema matches a baseline's output columns against the accepted
// aliases. A model without a recognised point-forecast column is rejected.
func ResolveSchema(columns []string, regressors []string) (Schema, error) {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c] = true
	}
	first := func(aliases []string) string {
		for _, a := range aliases {
			if present[a] {
				return a
			}
		}
		return ""
	}

	s := Schema{
		Forecast:      first(ForecastAliases),
		Seasonality:   first(SeasonalityAliases),
		Contributions: make(map[string]string, len(regressors)),
	}
	if s.Forecast == "" {
		return Schema{}, fmt.Errorf("baseline emits no point forecast column (want one of %v)", ForecastAliases)
	}

	s.Trend = s.Forecast
	if present[inference.ColumnTrend] {
		s.Trend = inference.ColumnTrend
	}

	if present[inference.ColumnEventsAdditive] {
		s.Holiday = inference.ColumnEventsAdditive
	} else {
		for _, c := range columns {
			lc := strings.ToLower(c)
			if strings.Contains(lc, "holiday") || (strings.Contains(lc, "event") && strings.Contains(lc, "additive")) {
				s.Holiday = c
				break
			}
		}
	}

	for _, c := range columns {
		if strings.HasPrefix(c, inference.EventColumnPrefix) {
			s.Events = append(s.Events, c)
		}
	}

	for _, r := range regressors {
		for _, candidate := range []string{inference.RegressorColumnPrefix + r, "season_" + r} {
			if present[candidate] {
				s.Contributions[r] = candidate
				break
			}
		}
	}
	return s, nil
}

// ResolveMetrics reads each metric from the first present key among
// hybrid_<name>, val_<name> and <name>. Missing metrics are zero.
func ResolveMetrics(raw map[string]float64) Metrics {
	get := func(name string) float64 {
		for _, prefix := range MetricPrefixes {
			if v, ok := raw[prefix+name]; ok {
				return v
			}
		}
		return 0
	}
	return Metrics{
		MAE:  get("mae"),
		RMSE: get("rmse"),
		MAPE: get("mape"),
		R2:   get("r2"),
		MASE: get("mase"),
	}
}
