// Package markethours defines the IST trading calendar: session-state
// computation, transition times, and the feed window the ingest supervisor
// must be live for. All functions are pure over (time, holiday table) so the
// scheduler can be tested against a fixed clock.
package markethours

import (
	"time"

	"marketpulse/internal/model"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// NSE session timings in IST.
const (
	PreOpenHour   = 9
	PreOpenMinute = 0

	OpenHour   = 9
	OpenMinute = 15

	CloseHour   = 15
	CloseMinute = 30

	// Feed window: the ingest opens ahead of pre-open and closes after
	// regular hours so no session boundary is missed.
	FeedStartHour   = 8
	FeedStartMinute = 50
	FeedStopHour    = 15
	FeedStopMinute  = 35
)

// IsWeekday returns true if t is Mon-Fri in IST.
func IsWeekday(t time.Time) bool {
	wd := t.In(IST).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time, cal *Calendar) bool {
	ist := t.In(IST)
	return IsWeekday(ist) && !cal.IsHoliday(ist)
}

// StateAt computes the session state for an instant. Weekends resolve to
// CLOSED; listed holidays resolve to HOLIDAY.
func StateAt(t time.Time, cal *Calendar) model.SessionState {
	ist := t.In(IST)
	if !IsWeekday(ist) {
		return model.SessionClosed
	}
	if cal.IsHoliday(ist) {
		return model.SessionHoliday
	}
	hms := ist.Hour()*3600 + ist.Minute()*60 + ist.Second()
	switch {
	case hms < PreOpenHour*3600+PreOpenMinute*60:
		return model.SessionClosed
	case hms < OpenHour*3600+OpenMinute*60:
		return model.SessionPreOpen
	case hms <= CloseHour*3600+CloseMinute*60:
		return model.SessionMarketOpen
	default:
		return model.SessionAfterHours
	}
}

// FeedShouldRun reports whether the upstream feed belongs open at t
// (08:50-15:35 IST on trading days).
func FeedShouldRun(t time.Time, cal *Calendar) bool {
	ist := t.In(IST)
	if !IsTradingDay(ist, cal) {
		return false
	}
	hm := ist.Hour()*60 + ist.Minute()
	return hm >= FeedStartHour*60+FeedStartMinute && hm < FeedStopHour*60+FeedStopMinute
}

// NextTransition returns the next instant at which StateAt changes. Pure.
func NextTransition(t time.Time, cal *Calendar) time.Time {
	ist := t.In(IST)
	if IsTradingDay(ist, cal) {
		boundaries := []time.Time{
			at(ist, PreOpenHour, PreOpenMinute, 0),
			at(ist, OpenHour, OpenMinute, 0),
			at(ist, CloseHour, CloseMinute, 0).Add(time.Second), // AFTER_HOURS starts one second past close
		}
		for _, b := range boundaries {
			if ist.Before(b) {
				return b
			}
		}
	}
	// Next trading day's pre-open.
	d := ist.AddDate(0, 0, 1)
	for i := 0; i < 14; i++ {
		if IsTradingDay(d, cal) {
			return at(d, PreOpenHour, PreOpenMinute, 0)
		}
		d = d.AddDate(0, 0, 1)
	}
	return at(ist.AddDate(0, 0, 1), PreOpenHour, PreOpenMinute, 0)
}

// SnapshotTTL returns the cache TTL appropriate for the session state.
func SnapshotTTL(state model.SessionState) time.Duration {
	if state == model.SessionMarketOpen {
		return 5 * time.Second
	}
	return 60 * time.Second
}

func at(day time.Time, h, m, s int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, s, 0, IST)
}
