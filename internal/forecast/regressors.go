package forecast

import (
	"fmt"

	"rabiescast/internal/bundle"
	"rabiescast/internal/features"
)

// AttachRegressors adds every regressor column the bundle's baseline was fit
// with to frame.
//
// Weather columns are neutral zeros at forecast time; with historical set,
// stored values are used when they cover the frame exactly. Vaccination
// columns are regenerated from the campaign calendar for the one
// municipality that uses them. Legacy seasonal columns come from stored
// values (historical only), else the municipality's seasonal builder, else
// zero.
func AttachRegressors(frame *features.Frame, b *bundle.Bundle, historical bool) error {
	for _, col := range b.RegressorColumns(bundle.Weather) {
		if values, ok := b.WeatherData[col]; historical && ok && len(values) == frame.Len() {
			if err := frame.AddColumn(col, values); err != nil {
				return err
			}
			continue
		}
		if err := fill(frame, col); err != nil {
			return err
		}
	}

	if b.UsesVaccination() {
		if err := features.AddVaccinationCampaigns(frame); err != nil {
			return err
		}
	}
	for _, col := range b.RegressorColumns(bundle.Vaccination) {
		if !frame.Has(col) {
			if err := fill(frame, col); err != nil {
				return err
			}
		}
	}

	seasonal := b.RegressorColumns(bundle.Seasonal)
	if len(seasonal) == 0 || b.UsesVaccination() {
		return nil
	}

	generated := features.NewFrame(frame.Dates)
	if build, ok := features.SeasonalBuilderFor(b.Municipality); ok {
		if err := build(generated); err != nil {
			return fmt.Errorf("seasonal indicators: %w", err)
		}
	}
	for _, col := range seasonal {
		if frame.Has(col) {
			continue
		}
		if values, ok := b.SeasonalData[col]; historical && ok && len(values) == frame.Len() {
			if err := frame.AddColumn(col, values); err != nil {
				return err
			}
			continue
		}
		if values, ok := generated.Column(col); ok {
			if err := frame.AddColumn(col, values); err != nil {
				return err
			}
			continue
		}
		if err := fill(frame, col); err != nil {
			return err
		}
	}
	return nil
}

func fill(frame *features.Frame, col string) error {
	if frame.Has(col) {
		return fmt.Errorf("column %s already exists", col)
	}
	return frame.Fill(col, 0)
}
