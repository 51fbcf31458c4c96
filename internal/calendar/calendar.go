// Package calendar maps markets to exchange calendars for timezone
// alignment and local trading-day checks.
package calendar

import (
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/scmhub/calendar"

	"market-gateway/pkg/market"
)

var (
	mics = map[market.Market]string{
		market.MarketUS: "xnys",
		market.MarketHK: "xhkg",
		market.MarketCN: "xshg",
		market.MarketSG: "xses",
	}
	zones = map[market.Market]string{
		market.MarketUS: "America/New_York",
		market.MarketHK: "Asia/Hong_Kong",
		market.MarketCN: "Asia/Shanghai",
		market.MarketSG: "Asia/Singapore",
	}
)

// Calendar answers trading-day questions for one market. When the
// exchange calendar is unavailable it falls back to Monday to Friday in the
// market timezone.
type Calendar struct {
	Market   market.Market
	cal      *calendar.Calendar
	loc      *time.Location
	fallback bool
}

var cache sync.Map // market.Market -> *Calendar

// For returns the calendar of a market. Unknown markets get a UTC weekday
// calendar.
func For(m market.Market) *Calendar {
	if c, ok := cache.Load(m); ok {
		return c.(*Calendar)
	}
	c := load(m)
	actual, _ := cache.LoadOrStore(m, c)
	return actual.(*Calendar)
}

// ForSymbol returns the calendar of the symbol's market.
func ForSymbol(symbol string) *Calendar {
	return For(market.MarketOf(symbol))
}

func load(m market.Market) *Calendar {
	c := &Calendar{Market: m, loc: time.UTC, fallback: true}
	if name, ok := zones[m]; ok {
		if loc, err := time.LoadLocation(name); err == nil {
			c.loc = loc
		}
	}
	if mic, ok := mics[m]; ok {
		if cal := calendar.GetCalendar(mic); cal != nil {
			c.cal = cal
			c.fallback = false
			if cal.Loc != nil {
				c.loc = cal.Loc
			}
		}
	}
	return c
}

// Location is the market timezone used to align candlestick buckets.
func (c *Calendar) Location() *time.Location { return c.loc }

// IsTradingDay reports whether the date is a business day in the market.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	t = t.In(c.loc)
	if c.fallback {
		wd := t.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	}
	return c.cal.IsBusinessDay(t)
}

// IsOpen reports whether the regular session is open at t.
func (c *Calendar) IsOpen(t time.Time) bool {
	if c.fallback {
		return c.IsTradingDay(t)
	}
	return c.cal.IsOpen(t.In(c.loc))
}

// NextTradingDay returns the first trading day strictly after t, at
// midnight in the market timezone.
func (c *Calendar) NextTradingDay(t time.Time) time.Time {
	t = t.In(c.loc)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
	for i := 0; i < 30; i++ {
		day = day.AddDate(0, 0, 1)
		if c.IsTradingDay(day) {
			return day
		}
	}
	return day
}
