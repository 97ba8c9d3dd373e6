package models

import (
	"strings"
	"time"
)

// Side как в журнале и в заявках: "BUY"/"SELL" или пустая строка.
type Side string

const (
	SideNone Side = ""
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func ParseSide(s string) Side {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "LONG":
		return SideBuy
	case "SELL", "SHORT":
		return SideSell
	}
	return SideNone
}

func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	}
	return SideNone
}

// Sign is +1 for BUY, -1 for SELL and 0 otherwise.
func (s Side) Sign() float64 {
	switch s {
	case SideBuy:
		return 1
	case SideSell:
		return -1
	}
	return 0
}

// GateResult is the outcome of one gate of a strategy chain.
type GateResult struct {
	Name      string  `json:"name" yaml:"name"`
	Passed    bool    `json:"passed" yaml:"passed"`
	Value     float64 `json:"value" yaml:"value"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
	// Margin > 0 means the gate passed with room, normalized by the threshold.
	Margin float64 `json:"margin" yaml:"margin"`
	Detail string  `json:"detail,omitempty" yaml:"detail,omitempty"`
}

type Signal struct {
	Bot       string
	Strategy  string
	Symbol    string
	Timeframe Timeframe
	Side      Side
	Price     float64
	ATR       float64
	BarTime   time.Time
	Reason    string
	Trace     []GateResult
	CreatedAt time.Time
}

func (s Signal) IsEmpty() bool { return s.Side == SideNone }
