package strategy

import (
	"fxbot/internal/models"
)

// Фильтры, общие для нескольких стратегий.

func adxMin(s *Snapshot, _ models.Side) models.GateResult {
	adx := s.at(s.DMI.ADX)
	if adx == 0 {
		return notReady("adx warmup")
	}
	return minGate(adx, s.Params.Get("adx_min"))
}

func atrPctMin(s *Snapshot, _ models.Side) models.GateResult {
	atr, c := s.LastATR(), s.Close()
	if atr <= 0 || c <= 0 {
		return notReady("atr warmup")
	}
	return minGate(atr/c, s.Params.Get("atr_pct"))
}

// emaSide: close on the trade side of the given EMA.
func emaSide(series func(*Snapshot) []float64) Check {
	return func(s *Snapshot, side models.Side) models.GateResult {
		ema := s.at(series(s))
		if ema == 0 {
			return notReady("ema warmup")
		}
		return beyond(side, s.Close(), ema, s.LastATR())
	}
}

func fastEMA(s *Snapshot) []float64  { return s.EMAFast }
func trendEMA(s *Snapshot) []float64 { return s.EMATrend }
