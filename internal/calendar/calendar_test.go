package calendar

import (
	"testing"
	"time"

	"market-gateway/pkg/market"
)

func TestLocations(t *testing.T) {
	tests := []struct {
		symbol string
		zone   string
	}{
		{"700.HK", "Asia/Hong_Kong"},
		{"AAPL.US", "America/New_York"},
		{"600519.SH", "Asia/Shanghai"},
	}
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			want, err := time.LoadLocation(tt.zone)
			if err != nil {
				t.Fatalf("load %s: %v", tt.zone, err)
			}
			ts := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
			got := ForSymbol(tt.symbol).Location()
			_, wantOff := ts.In(want).Zone()
			_, gotOff := ts.In(got).Zone()
			if wantOff != gotOff {
				t.Fatalf("offset = %d, want %d", gotOff, wantOff)
			}
		})
	}
}

func TestWeekendIsNotTradingDay(t *testing.T) {
	cal := For(market.MarketUS)
	sat := time.Date(2024, 6, 8, 15, 0, 0, 0, cal.Location())
	if cal.IsTradingDay(sat) {
		t.Fatal("saturday reported as trading day")
	}
	next := cal.NextTradingDay(sat)
	if next.Weekday() != time.Monday {
		t.Fatalf("next trading day = %s, want Monday", next.Weekday())
	}
}

func TestUnknownMarketFallsBackToUTC(t *testing.T) {
	cal := For(market.Market("XX"))
	if cal.Location() != time.UTC {
		t.Fatalf("location = %v, want UTC", cal.Location())
	}
	if !cal.IsTradingDay(time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("tuesday should be a trading day in fallback mode")
	}
}
