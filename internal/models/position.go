package models

import "time"

// Position: открытая позиция терминала.
type Position struct {
	Ticket   int64     `json:"ticket"`
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	Volume   float64   `json:"volume"`
	Entry    float64   `json:"entry"`
	SL       float64   `json:"sl"`
	TP       float64   `json:"tp"`
	Price    float64   `json:"price"`
	Profit   float64   `json:"profit"`
	Magic    int64     `json:"magic"`
	Comment  string    `json:"comment"`
	OpenedAt time.Time `json:"opened_at"`
}

type SymbolInfo struct {
	Name       string  `json:"name"`
	Digits     int     `json:"digits"`
	Point      float64 `json:"point"`
	TickSize   float64 `json:"tick_size"`
	TickValue  float64 `json:"tick_value"`
	VolumeMin  float64 `json:"volume_min"`
	VolumeMax  float64 `json:"volume_max"`
	VolumeStep float64 `json:"volume_step"`
	Spread     int     `json:"spread"`
}

type Account struct {
	Login    int64   `json:"login"`
	Balance  float64 `json:"balance"`
	Equity   float64 `json:"equity"`
	Currency string  `json:"currency"`
	Leverage int     `json:"leverage"`
}

type DealEntry string

const (
	DealIn  DealEntry = "IN"
	DealOut DealEntry = "OUT"
)

type Deal struct {
	Ticket         int64     `json:"ticket"`
	PositionTicket int64     `json:"position"`
	Entry          DealEntry `json:"entry"`
	Price          float64   `json:"price"`
	Volume         float64   `json:"volume"`
	Profit         float64   `json:"profit"`
	Time           time.Time `json:"time"`
	Comment        string    `json:"comment"`
}

// PositionTrailState: состояние сопровождения позиции между барами.
type PositionTrailState struct {
	Ticket   int64
	Symbol   string
	Side     Side
	Entry    float64
	SL       float64
	TP       float64
	RiskDist float64
	Volume   float64
	TickSz   float64

	MFE      float64 // лучшая цена с момента входа
	OpenedAt time.Time
	Bars     int

	MovedToBE    bool
	LockedProfit bool
	TookPartial  bool
	LastBar      time.Time
}

// UpdateMFE двигает лучшую цену по high/low бара.
func (st *PositionTrailState) UpdateMFE(high, low float64) {
	switch st.Side {
	case SideBuy:
		if st.MFE == 0 || high > st.MFE {
			st.MFE = high
		}
	case SideSell:
		if st.MFE == 0 || low < st.MFE {
			st.MFE = low
		}
	}
}

// MFER is the favourable excursion in R units.
func (st *PositionTrailState) MFER() float64 {
	if st.RiskDist <= 0 || st.MFE == 0 {
		return 0
	}
	return (st.MFE - st.Entry) * st.Side.Sign() / st.RiskDist
}

// TrailStep: какое правило сопровождения сработало.
type TrailStep string

const (
	StepTimeStop TrailStep = "time_stop"
	StepBE       TrailStep = "be"
	StepPartial  TrailStep = "partial"
	StepLock     TrailStep = "lock"
	StepTrail    TrailStep = "atr_trail"
)

// Done отмечает разовое правило выполненным. Вызывается только после того,
// как брокер принял действие.
func (st *PositionTrailState) Done(step TrailStep) {
	switch step {
	case StepBE:
		st.MovedToBE = true
	case StepPartial:
		st.TookPartial = true
	case StepLock:
		st.LockedProfit = true
	}
}

type TrailDecision struct {
	Step      TrailStep
	MoveSL    bool
	NewSL     float64
	Close     bool
	CloseSize float64
	Reason    string
}
