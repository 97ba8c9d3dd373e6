package strategy

import (
	"fmt"

	"fxbot/internal/indicators"
	"fxbot/internal/models"
)

// donchian_breakout: пробой канала Дончиана по тренду EMA с импульсной свечой.
var donchianDefaults = Params{
	"adx_min":  25,
	"atr_pct":  0.001,
	"body_atr": 0.5,
}

func donchianChain() Chain {
	return Chain{
		Name:      "donchian_breakout",
		Direction: trendDirection,
		Gates: []Gate{
			{Name: "channel_break", Check: channelBreak},
			{Name: "adx_min", Check: adxMin},
			{Name: "atr_pct_min", Check: atrPctMin},
			{Name: "impulse_body", Check: impulseBody},
		},
	}
}

func donchianWarmup(p Params) int {
	return maxInt(p.Int("trend"), p.Int("period")+1, 2*p.Int("adx_period")+1, p.Int("atr_period")+1) + 10
}

func trendDirection(s *Snapshot) (models.Side, models.GateResult) {
	ema := s.at(s.EMATrend)
	if ema == 0 {
		return models.SideNone, notReady("ema warmup")
	}
	c := s.Close()
	switch {
	case c > ema:
		return models.SideBuy, beyond(models.SideBuy, c, ema, s.LastATR())
	case c < ema:
		return models.SideSell, beyond(models.SideSell, c, ema, s.LastATR())
	}
	return models.SideNone, models.GateResult{Value: c, Threshold: ema}
}

func channelBreak(s *Snapshot, side models.Side) models.GateResult {
	upper, lower, ok := indicators.PriorChannelAt(s.Channel, s.Last)
	if !ok {
		return notReady("channel warmup")
	}
	level := upper
	if side == models.SideSell {
		level = lower
	}
	r := beyond(side, s.Close(), level, s.LastATR())
	r.Detail = fmt.Sprintf("period=%d", s.Channel.Period)
	return r
}

// impulseBody: тело бара в сторону сделки не меньше body_atr x ATR.
func impulseBody(s *Snapshot, side models.Side) models.GateResult {
	atr := s.LastATR()
	if atr <= 0 {
		return notReady("atr warmup")
	}
	bar := s.Bar()
	return minGate((bar.Close-bar.Open)*side.Sign()/atr, s.Params.Get("body_atr"))
}
