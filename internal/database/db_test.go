package database

import (
	"context"
	"testing"
	"time"

	"rabiescast/internal/logging"
	"rabiescast/internal/models"
)

func TestNewDB_InvalidDSN(t *testing.T) {
	db, err := NewDB(context.Background(), "not a dsn", logging.Discard())
	if err == nil {
		db.Close()
		t.Fatal("NewDB() expected error for malformed DSN")
	}
}

func TestLimitOrDefault(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, defaultLimit},
		{-3, defaultLimit},
		{1, 1},
		{250, 250},
	}
	for _, tt := range tests {
		if got := limitOrDefault(tt.in); got != tt.want {
			t.Errorf("limitOrDefault(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestLabelMonths(t *testing.T) {
	rows := labelMonths([]models.MonthlyWeather{
		{Month: time.Date(2023, time.March, 1, 0, 0, 0, 0, time.UTC)},
		{Month: time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC)},
	})
	if rows[0].MonthLabel != "2023-03" || rows[1].MonthLabel != "2023-12" {
		t.Errorf("labelMonths() = %q, %q", rows[0].MonthLabel, rows[1].MonthLabel)
	}
}

func TestEmptyBatchesSkipConnection(t *testing.T) {
	db := &DB{logger: logging.Discard()}
	ctx := context.Background()

	if err := db.StoreMonthlyWeather(ctx, nil); err != nil {
		t.Errorf("StoreMonthlyWeather(nil) = %v, want nil", err)
	}
	if err := db.StoreAlerts(ctx, nil); err != nil {
		t.Errorf("StoreAlerts(nil) = %v, want nil", err)
	}
	if err := db.StoreRiskSnapshots(ctx, nil); err != nil {
		t.Errorf("StoreRiskSnapshots(nil) = %v, want nil", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("Close() on unopened DB = %v, want nil", err)
	}
}
