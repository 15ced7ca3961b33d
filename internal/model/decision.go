package model

import "time"

// Action is the final trading decision action.
type Action string

const (
	ActionStrongBuy  Action = "STRONG_BUY"
	ActionBuy        Action = "BUY"
	ActionHold       Action = "HOLD"
	ActionWait       Action = "WAIT"
	ActionSell       Action = "SELL"
	ActionStrongSell Action = "STRONG_SELL"
)

// RiskLevel classifies the decision's risk.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// ScoreComponents exposes the decision arithmetic for auditability.
// Final = clip(Base + PCRAdj + OIAdj + VolAdj + BreadthAdj, 0, 100)
// where each Adj already carries its weight.
type ScoreComponents struct {
	Base       float64 `json:"base"`
	PCRAdj     float64 `json:"pcr_adj"`
	OIAdj      float64 `json:"oi_adj"`
	VolAdj     float64 `json:"vol_adj"`
	BreadthAdj float64 `json:"breadth_adj"`
	Final      float64 `json:"final"`
}

// TraderActions is the guidance text block keyed from the decision table.
type TraderActions struct {
	Entry     string `json:"entry_setup"`
	Position  string `json:"position_management"`
	Risk      string `json:"risk_management"`
	Timeframe string `json:"timeframe"`
}

// Decision is the final composed trading decision for one symbol.
type Decision struct {
	Symbol     Symbol          `json:"symbol"`
	Action     Action          `json:"action"`
	Confidence float64         `json:"confidence"` // == Score.Final
	Risk       RiskLevel       `json:"risk_level"`
	Score      ScoreComponents `json:"score_components"`
	Actions    TraderActions   `json:"trader_actions"`
	Monitor    []string        `json:"monitor"`
	TS         time.Time       `json:"ts"`
}
