package strategy

import (
	"fmt"
	"math"

	"fxbot/internal/indicators"
	"fxbot/internal/models"
)

// ema_pullback: тренд по EMA fast/slow, вход на откате к быстрой EMA
// с подтверждением свечой.
var emaPullbackDefaults = Params{
	"adx_min":      20,
	"pullback_atr": 1.0,
	"rsi_low":      40,
	"rsi_high":     60,
}

func emaPullbackChain() Chain {
	return Chain{
		Name:      "ema_pullback",
		Direction: emaCrossDirection,
		Gates: []Gate{
			{Name: "adx_min", Check: adxMin},
			{Name: "pullback_to_ema", Check: pullbackToEMA},
			{Name: "rsi_zone", Check: rsiZone},
			{Name: "trigger_candle", Check: triggerCandle},
		},
	}
}

func emaPullbackWarmup(p Params) int {
	return maxInt(p.Int("slow"), p.Int("fast"), 2*p.Int("adx_period")+1, p.Int("rsi_period")+2) + 10
}

func emaCrossDirection(s *Snapshot) (models.Side, models.GateResult) {
	fast, slow, atr := s.at(s.EMAFast), s.at(s.EMASlow), s.LastATR()
	if fast == 0 || slow == 0 {
		return models.SideNone, notReady("ema warmup")
	}
	spread := fast - slow
	if atr > 0 {
		spread /= atr
	}
	r := models.GateResult{Value: fast, Threshold: slow, Margin: math.Abs(spread)}
	switch {
	case fast > slow:
		return models.SideBuy, r
	case fast < slow:
		return models.SideSell, r
	}
	return models.SideNone, r
}

func pullbackToEMA(s *Snapshot, _ models.Side) models.GateResult {
	ema, atr := s.at(s.EMAFast), s.LastATR()
	if ema == 0 || atr <= 0 {
		return notReady("ema/atr warmup")
	}
	r := maxGate(math.Abs(s.Close()-ema)/atr, s.Params.Get("pullback_atr"))
	r.Detail = fmt.Sprintf("ema=%.5f", ema)
	return r
}

// rsiZone: для BUY RSI в [low, high] и растёт, для SELL зеркальная зона и падает.
func rsiZone(s *Snapshot, side models.Side) models.GateResult {
	rsi, prev := s.at(s.RSI), s.back(s.RSI, 1)
	if rsi == 0 || prev == 0 {
		return notReady("rsi warmup")
	}
	lo, hi := s.Params.Get("rsi_low"), s.Params.Get("rsi_high")
	if side == models.SideSell {
		lo, hi = 100-hi, 100-lo
	}
	r := within(rsi, lo, hi)
	if (rsi-prev)*side.Sign() <= 0 {
		r.Passed = false
		r.Margin = math.Min(r.Margin, -1)
		r.Detail += " wrong slope"
	}
	return r
}

func triggerCandle(s *Snapshot, side models.Side) models.GateResult {
	if s.Last < 1 {
		return notReady("need two bars")
	}
	name, ok := indicators.TriggerCandle(s.Prev(), s.Bar(), side)
	if !ok {
		name = "none"
	}
	return flag(ok, name)
}

func maxInt(xs ...int) int {
	m := 0
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	return m
}
