package model

import "time"

// SessionState is the canonical market-session state on the IST clock.
type SessionState string

const (
	SessionPreOpen    SessionState = "PRE_OPEN"
	SessionMarketOpen SessionState = "MARKET_OPEN"
	SessionAfterHours SessionState = "AFTER_HOURS"
	SessionClosed     SessionState = "CLOSED"
	SessionHoliday    SessionState = "HOLIDAY"
)

// Session is the scheduler's published view of the current session.
type Session struct {
	State        SessionState `json:"state"`
	LastChangeTS time.Time    `json:"last_transition_ts"`
	NextChangeTS time.Time    `json:"next_transition_ts"`
}
