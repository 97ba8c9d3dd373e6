package runner

import (
	"errors"
	"fmt"
	"math"

	"fxbot/internal/config"
	"fxbot/internal/helper"
	"fxbot/internal/models"
)

// entryInput: всё, что нужно для SL/TP/объёма одной заявки.
type entryInput struct {
	Side    models.Side
	Entry   float64
	ATR     float64
	Balance float64
	Symbol  models.SymbolInfo
	Risk    config.RiskConfig

	// последние подтверждённые свинги до сигнального бара, 0: нет
	SwingLow  float64
	SwingHigh float64
}

// calcTradeParams считает SL по sl_mode, TP от 1R и объём по денежному риску.
func calcTradeParams(in entryInput) (models.TradeParams, error) {
	if in.Side != models.SideBuy && in.Side != models.SideSell {
		return models.TradeParams{}, fmt.Errorf("unknown side %q", in.Side)
	}
	if in.Entry <= 0 || !helper.IsFinite(in.Entry) {
		return models.TradeParams{}, fmt.Errorf("entry %.5f <= 0", in.Entry)
	}
	if in.ATR <= 0 || !helper.IsFinite(in.ATR) {
		return models.TradeParams{}, fmt.Errorf("atr %.5f <= 0", in.ATR)
	}
	rr := in.Risk.TakeProfitRR
	if rr <= 0 {
		return models.TradeParams{}, errors.New("take_profit_rr <= 0")
	}
	tick := in.Symbol.TickSize

	// 1) сырой SL
	slRaw := in.Entry - in.Side.Sign()*in.Risk.SLATRMult*in.ATR
	if in.Risk.SLMode == "swing" {
		buf := in.Risk.SLBufferATR * in.ATR
		switch {
		case in.Side == models.SideBuy && in.SwingLow > 0 && in.SwingLow < in.Entry:
			slRaw = in.SwingLow - buf
		case in.Side == models.SideSell && in.SwingHigh > in.Entry:
			slRaw = in.SwingHigh + buf
		}
	}

	// 2) SL округляем от цены
	sl := helper.RoundDownToTick(slRaw, tick)
	if in.Side == models.SideSell {
		sl = helper.RoundUpToTick(slRaw, tick)
	}

	// 3) реальный риск после округления
	riskDist := math.Abs(in.Entry - sl)
	if riskDist <= 0 || sl <= 0 {
		return models.TradeParams{}, fmt.Errorf("bad stop %.5f for entry %.5f", sl, in.Entry)
	}

	// 4) TP от 1R
	tpRaw := in.Entry + in.Side.Sign()*rr*riskDist
	tp := helper.RoundUpToTick(tpRaw, tick)
	if in.Side == models.SideSell {
		tp = helper.RoundDownToTick(tpRaw, tick)
	}

	vol, err := calcVolume(in.Balance, in.Risk.RiskPct, riskDist, in.Symbol)
	if err != nil {
		return models.TradeParams{}, fmt.Errorf("calc volume: %w", err)
	}

	return models.TradeParams{
		Direction: in.Side,
		Entry:     in.Entry,
		SL:        sl,
		TP:        tp,
		Volume:    vol,
		RiskDist:  riskDist,
		RR:        rr,
		RiskPct:   in.Risk.RiskPct,
		TickSize:  tick,
	}, nil
}
