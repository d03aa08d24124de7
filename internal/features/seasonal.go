package features

import (
	"fmt"
	"time"
)

// Builder appends deterministic calendar columns to a frame.
type Builder func(f *Frame) error

type seasonalFlag struct {
	name string
	on   func(date time.Time) bool
}

func monthIn(months ...time.Month) func(time.Time) bool {
	return func(date time.Time) bool {
		for _, m := range months {
			if date.Month() == m {
				return true
			}
		}
		return false
	}
}

func monthBetween(from, to time.Month) func(time.Time) bool {
	return func(date time.Time) bool {
		return date.Month() >= from && date.Month() <= to
	}
}

var angonoRegimeStart = time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)

var caintaFlags = []seasonalFlag{
	{name: "may_peak", on: monthIn(time.May)},
	{name: "low_season", on: monthBetween(time.January, time.April)},
	{name: "spring_ramp", on: monthBetween(time.March, time.May)},
	{name: "january_holiday", on: monthIn(time.January)},
	{name: "post_may_decline", on: monthBetween(time.June, time.December)},
}

var angonoFlags = []seasonalFlag{
	{name: "high_season", on: monthIn(time.April, time.May, time.June)},
	{name: "july_dip", on: monthIn(time.July)},
	{name: "august_rise", on: monthIn(time.August)},
	{name: "low_season", on: monthIn(time.December, time.January)},
	{name: "post_april_2024", on: func(date time.Time) bool { return !date.Before(angonoRegimeStart) }},
}

var seasonalBuilders = map[string]Builder{
	"CAINTA": AddCaintaSeasonal,
	"ANGONO": AddAngonoSeasonal,
}

// SeasonalBuilderFor returns the seasonal-indicator builder for a
// municipality, if it has one.
func SeasonalBuilderFor(municipality string) (Builder, bool) {
	b, ok := seasonalBuilders[municipality]
	return b, ok
}

// AddCaintaSeasonal adds the CAINTA calendar flags: May peak, Jan-Apr low
// season, Mar-May ramp, January holiday and the Jun-Dec decline.
func AddCaintaSeasonal(f *Frame) error {
	return addFlags(f, caintaFlags)
}

// AddAngonoSeasonal adds the ANGONO calendar flags, including the regime
// indicator that switches on from April 2024.
func AddAngonoSeasonal(f *Frame) error {
	return addFlags(f, angonoFlags)
}

// SeasonalIndicators evaluates a municipality's flags for a single date.
func SeasonalIndicators(municipality string, date time.Time) map[string]int {
	var flags []seasonalFlag
	switch municipality {
	case "CAINTA":
		flags = caintaFlags
	case "ANGONO":
		flags = angonoFlags
	default:
		return map[string]int{}
	}
	out := make(map[string]int, len(flags))
	for _, flag := range flags {
		out[flag.name] = indicator(flag.on(date))
	}
	return out
}

func addFlags(f *Frame, flags []seasonalFlag) error {
	for _, flag := range flags {
		if f.Has(flag.name) {
			return fmt.Errorf("seasonal column %s already present", flag.name)
		}
	}
	for _, flag := range flags {
		values := make([]float64, f.Len())
		for i, date := range f.Dates {
			values[i] = float64(indicator(flag.on(date)))
		}
		if err := f.AddColumn(flag.name, values); err != nil {
			return err
		}
	}
	return nil
}

func indicator(on bool) int {
	if on {
		return 1
	}
	return 0
}
