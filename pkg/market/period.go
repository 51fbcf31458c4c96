package market

import (
	"strings"
	"time"
)

// Period is a candlestick period; values match the wire enum.
type Period int32

const (
	PeriodUnknown Period = 0
	Period1Min    Period = 1
	Period5Min    Period = 5
	Period15Min   Period = 15
	Period30Min   Period = 30
	Period60Min   Period = 60
	PeriodDay     Period = 1000
	PeriodWeek    Period = 2000
	PeriodMonth   Period = 3000
	PeriodYear    Period = 4000
)

var periodNames = map[Period]string{
	Period1Min:  "1m",
	Period5Min:  "5m",
	Period15Min: "15m",
	Period30Min: "30m",
	Period60Min: "60m",
	PeriodDay:   "day",
	PeriodWeek:  "week",
	PeriodMonth: "month",
	PeriodYear:  "year",
}

func (p Period) String() string {
	if n, ok := periodNames[p]; ok {
		return n
	}
	return "unknown"
}

func (p Period) Valid() bool {
	_, ok := periodNames[p]
	return ok
}

// IsMinute reports whether the period is intraday.
func (p Period) IsMinute() bool {
	return p >= Period1Min && p <= Period60Min && p.Valid()
}

// Minutes returns the bucket length of an intraday period, 0 otherwise.
func (p Period) Minutes() int {
	if !p.IsMinute() {
		return 0
	}
	return int(p)
}

// RequiredFlag is the subscription the client aggregator needs to build
// bars of this period: ticks for intraday, quotes for daily and above.
func (p Period) RequiredFlag() SubFlags {
	if p.IsMinute() {
		return SubTrade
	}
	return SubQuote
}

// ParsePeriod accepts the names returned by String.
func ParsePeriod(s string) (Period, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, n := range periodNames {
		if n == s {
			return p, true
		}
	}
	return PeriodUnknown, false
}

// BucketStart returns the open time of the bucket containing t, aligned in loc.
// Weeks start on Monday.
func (p Period) BucketStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	switch {
	case p.IsMinute():
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		mins := int(t.Sub(day) / time.Minute)
		mins -= mins % p.Minutes()
		return day.Add(time.Duration(mins) * time.Minute)
	case p == PeriodDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	case p == PeriodWeek:
		offset := (int(t.Weekday()) + 6) % 7
		return time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, loc)
	case p == PeriodMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	case p == PeriodYear:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, loc)
	default:
		return t
	}
}
