package main

import (
	"strings"
	"testing"
	"time"

	"rabiescast/internal/logging"
)

func TestParseWeather(t *testing.T) {
	input := `location,municipality,month,tmean_c,rh_pct,precip_mm,wind_speed_10m_max_kmh,sunshine_hours
Dolores,taytay,2023-01,26.5,78,12.4,18.2,210.5
Dolores,taytay,2023-02-01,27,76,8,17,220
Dolores,taytay,2023-03,hot,76,8,17,220
Dolores,taytay,March,27,76,8,17,220
`
	rows, skipped, err := parseWeather(strings.NewReader(input), "", "", logging.Discard())
	if err != nil {
		t.Fatalf("parseWeather() error = %v", err)
	}
	if len(rows) != 2 || skipped != 2 {
		t.Fatalf("parseWeather() = %d rows, %d skipped, want 2 and 2", len(rows), skipped)
	}

	jan := rows[0]
	if jan.Location != "Dolores" || jan.Municipality != "TAYTAY" || jan.MonthLabel != "2023-01" {
		t.Errorf("January identity = %+v", jan)
	}
	if jan.TempMeanC != 26.5 || jan.RHPct != 78 || jan.PrecipMM != 12.4 || jan.WindMaxKmh != 18.2 || jan.SunshineHours != 210.5 {
		t.Errorf("January values = %+v", jan)
	}
	if jan.Days != 31 {
		t.Errorf("January days = %d, want 31", jan.Days)
	}
	if !rows[1].Month.Equal(time.Date(2023, time.February, 1, 0, 0, 0, 0, time.UTC)) || rows[1].Days != 28 {
		t.Errorf("February = %v with %d days", rows[1].Month, rows[1].Days)
	}
}

func TestParseWeather_Defaults(t *testing.T) {
	input := `month,tmean_c,rh_pct,precip_mm,wind_speed_10m_max_kmh,sunshine_hours,days
2024-02,28,70,0,20,250,29
`
	rows, _, err := parseWeather(strings.NewReader(input), "Angono Poblacion", "ANGONO", logging.Discard())
	if err != nil {
		t.Fatalf("parseWeather() error = %v", err)
	}
	if len(rows) != 1 || rows[0].Location != "Angono Poblacion" || rows[0].Municipality != "ANGONO" || rows[0].Days != 29 {
		t.Errorf("rows = %+v", rows)
	}
}

func TestParseWeather_BadHeader(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		location string
	}{
		{"empty file", "", "x"},
		{"missing column", "location,month,tmean_c\n", ""},
		{"no location anywhere", "month,tmean_c,rh_pct,precip_mm,wind_speed_10m_max_kmh,sunshine_hours\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := parseWeather(strings.NewReader(tt.input), tt.location, "", logging.Discard()); err == nil {
				t.Error("parseWeather() expected error")
			}
		})
	}
}

func TestParseMonth(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2023-07", "2023-07-01", false},
		{"2023-07-19", "2023-07-01", false},
		{"07/2023", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := parseMonth(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseMonth(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got.Format("2006-01-02") != tt.want {
			t.Errorf("parseMonth(%q) = %s, want %s", tt.in, got.Format("2006-01-02"), tt.want)
		}
	}
}
