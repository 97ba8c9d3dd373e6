package models

import "time"

type TradeStatus string

const (
	TradeOpen   TradeStatus = "OPEN"
	TradeClosed TradeStatus = "CLOSED"
)

type TradeParams struct {
	Direction Side
	Entry     float64
	SL        float64
	TP        float64
	Volume    float64
	RiskDist  float64 // фактический риск-ход по цене (1R)
	RR        float64
	RiskPct   float64
	TickSize  float64
}

// Trade: строка журнала сделок.
type Trade struct {
	ID         int64        `json:"id"`
	Ticket     int64        `json:"ticket"`
	Bot        string       `json:"bot"`
	Strategy   string       `json:"strategy"`
	Symbol     string       `json:"symbol"`
	Timeframe  Timeframe    `json:"timeframe"`
	Side       Side         `json:"side"`
	Volume     float64      `json:"volume"`
	Entry      float64      `json:"entry"`
	SL         float64      `json:"sl"`
	TP         float64      `json:"tp"`
	RiskDist   float64      `json:"risk_dist"`
	OpenedAt   time.Time    `json:"opened_at"`
	BarTime    time.Time    `json:"bar_time"`
	Status     TradeStatus  `json:"status"`
	ExitPrice  float64      `json:"exit_price"`
	ClosedAt   time.Time    `json:"closed_at"`
	Profit     float64      `json:"profit"`
	ExitReason string       `json:"exit_reason"`
	Trace      []GateResult `json:"trace"`
}

func (t *Trade) IsLoss() bool {
	return t.Status == TradeClosed && t.Profit < 0
}

// R is the realised price move in units of the initial risk.
func (t *Trade) R() float64 {
	if t.RiskDist <= 0 || t.ExitPrice == 0 {
		return 0
	}
	return (t.ExitPrice - t.Entry) * t.Side.Sign() / t.RiskDist
}
