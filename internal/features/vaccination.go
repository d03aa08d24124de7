package features

import (
	"fmt"
	"time"
)

// VaccinationMunicipality is the only municipality whose models carry
// vaccination-campaign regressors.
const VaccinationMunicipality = "CITY OF ANTIPOLO"

// Campaign is a mass anti-rabies vaccination drive held in a single month.
type Campaign struct {
	Name  string
	Month time.Time
}

// CampaignLags are the delays, in months, at which a campaign's effect is
// modelled. The campaign month itself is not a feature.
var CampaignLags = []int{1, 2, 3}

// AntipoloCampaigns is the fixed calendar of city-wide drives.
var AntipoloCampaigns = []Campaign{
	{Name: "vaccination_jan2023", Month: time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)},
	{Name: "vaccination_feb2023", Month: time.Date(2023, time.February, 1, 0, 0, 0, 0, time.UTC)},
	{Name: "vaccination_mar2023", Month: time.Date(2023, time.March, 1, 0, 0, 0, 0, time.UTC)},
	{Name: "vaccination_apr2023", Month: time.Date(2023, time.April, 1, 0, 0, 0, 0, time.UTC)},
	{Name: "vaccination_mar2024", Month: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)},
}

// LagColumn names the k-month lagged indicator of a campaign.
func LagColumn(campaign string, lag int) string {
	return fmt.Sprintf("%s_lag%d", campaign, lag)
}

// VaccinationColumns lists the columns AddVaccinationCampaigns leaves on the
// frame, campaign-major.
func VaccinationColumns() []string {
	cols := make([]string, 0, len(AntipoloCampaigns)*len(CampaignLags))
	for _, c := range AntipoloCampaigns {
		for _, lag := range CampaignLags {
			cols = append(cols, LagColumn(c.Name, lag))
		}
	}
	return cols
}

// active reports whether the campaign ran in the month of date.
func (c Campaign) active(date time.Time) bool {
	return MonthStart(date).Equal(c.Month)
}

// AddVaccinationCampaigns computes a 0/1 indicator per campaign, derives the
// 1-, 2- and 3-month lagged copies and then removes the base indicators, so
// only the lagged columns remain. Lags are taken on the calendar: row t gets
// the base value of month t-k whether or not that month is in the frame.
// This differs from shifting rows and zero-filling: the first k rows of a
// frame, and frames of three rows or fewer, still see campaigns held just
// before the frame starts. A one-row April 2024 frame (the month after a
// March 2024 validation end) gets vaccination_mar2024_lag1 = 1, not 0.
func AddVaccinationCampaigns(f *Frame) error {
	for _, col := range VaccinationColumns() {
		if f.Has(col) {
			return fmt.Errorf("vaccination column %s already present", col)
		}
	}

	for _, c := range AntipoloCampaigns {
		if f.Has(c.Name) {
			return fmt.Errorf("vaccination column %s already present", c.Name)
		}
		base := make([]float64, f.Len())
		for i, date := range f.Dates {
			base[i] = float64(indicator(c.active(date)))
		}
		if err := f.AddColumn(c.Name, base); err != nil {
			return err
		}

		for _, lag := range CampaignLags {
			lagged := make([]float64, f.Len())
			for i, date := range f.Dates {
				lagged[i] = float64(indicator(c.active(AddMonths(date, -lag))))
			}
			if err := f.AddColumn(LagColumn(c.Name, lag), lagged); err != nil {
				return err
			}
		}
	}

	for _, c := range AntipoloCampaigns {
		f.DropColumn(c.Name)
	}
	return nil
}
